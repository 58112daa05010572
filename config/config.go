/*
Copyright 2024 Boostgram Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"BOOSTGRAM_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"BOOSTGRAM_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"BOOSTGRAM_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"BOOSTGRAM_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"BOOSTGRAM_REDIS_DNS"`
}

type QueueConfig struct {
	PaymentEventQueue string `json:"payment_event_queue" envconfig:"BOOSTGRAM_PAYMENT_EVENT_QUEUE"`
	NumberOfQueues    int    `json:"number_of_queues" envconfig:"BOOSTGRAM_NUMBER_OF_QUEUES"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"BOOSTGRAM_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"BOOSTGRAM_QUEUE_MONITORING_PORT"`
}

// DispatchConfig tunes the order dispatch engine. The inter-target delay is
// a deliberate throttle against platform abuse detection, not a performance
// knob.
type DispatchConfig struct {
	MaxTargets            int `json:"max_targets" envconfig:"BOOSTGRAM_DISPATCH_MAX_TARGETS"`
	InterTargetDelaySec   int `json:"inter_target_delay_sec" envconfig:"BOOSTGRAM_DISPATCH_INTER_TARGET_DELAY_SEC"`
	TransactionLockTTLMin int `json:"transaction_lock_ttl_min" envconfig:"BOOSTGRAM_DISPATCH_TXN_LOCK_TTL_MIN"`
	LockHardCeilingMin    int `json:"lock_hard_ceiling_min" envconfig:"BOOSTGRAM_DISPATCH_LOCK_HARD_CEILING_MIN"`
}

func (d DispatchConfig) InterTargetDelay() time.Duration {
	return time.Duration(d.InterTargetDelaySec) * time.Second
}

func (d DispatchConfig) TransactionLockTTL() time.Duration {
	return time.Duration(d.TransactionLockTTLMin) * time.Minute
}

func (d DispatchConfig) LockHardCeiling() time.Duration {
	return time.Duration(d.LockHardCeilingMin) * time.Minute
}

// CooldownConfig holds the follower cool-down windows. Empirically tuned;
// kept configurable rather than hard-coded.
type CooldownConfig struct {
	FollowerHardBlockMin int `json:"follower_hard_block_min" envconfig:"BOOSTGRAM_COOLDOWN_HARD_BLOCK_MIN"`
	FollowerWarnHours    int `json:"follower_warn_hours" envconfig:"BOOSTGRAM_COOLDOWN_WARN_HOURS"`
}

func (c CooldownConfig) HardBlock() time.Duration {
	return time.Duration(c.FollowerHardBlockMin) * time.Minute
}

func (c CooldownConfig) Warn() time.Duration {
	return time.Duration(c.FollowerWarnHours) * time.Hour
}

// RateLimitConfig covers both directions: MaxRequests/Interval/Backoff
// throttle outbound provider calls; the pointer fields throttle inbound API
// requests and leave it disabled when unset.
type RateLimitConfig struct {
	MaxRequests    int `json:"max_requests" envconfig:"BOOSTGRAM_RATE_LIMIT_MAX_REQUESTS"`
	IntervalSec    int `json:"interval_sec" envconfig:"BOOSTGRAM_RATE_LIMIT_INTERVAL_SEC"`
	BackoffTimeSec int `json:"backoff_time_sec" envconfig:"BOOSTGRAM_RATE_LIMIT_BACKOFF_SEC"`

	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"BOOSTGRAM_API_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"BOOSTGRAM_API_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"BOOSTGRAM_API_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

func (r RateLimitConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSec) * time.Second
}

func (r RateLimitConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffTimeSec) * time.Second
}

type SchedulerConfig struct {
	TransactionSweepSec int `json:"transaction_sweep_sec" envconfig:"BOOSTGRAM_SCHEDULER_TXN_SWEEP_SEC"`
	OrderRefreshSec     int `json:"order_refresh_sec" envconfig:"BOOSTGRAM_SCHEDULER_ORDER_REFRESH_SEC"`
	LockSweepSec        int `json:"lock_sweep_sec" envconfig:"BOOSTGRAM_SCHEDULER_LOCK_SWEEP_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"BOOSTGRAM_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	Dispatch     DispatchConfig   `json:"dispatch"`
	Cooldown     CooldownConfig   `json:"cooldown"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Scheduler    SchedulerConfig  `json:"scheduler"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("boostgram", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called boostgram.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Boostgram Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	cnf.applyDefaults()

	return nil
}

func (cnf *Configuration) applyDefaults() {
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.PaymentEventQueue == "" {
		cnf.Queue.PaymentEventQueue = "new:payment_event"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	if cnf.Dispatch.MaxTargets <= 0 {
		cnf.Dispatch.MaxTargets = 5
	}
	if cnf.Dispatch.InterTargetDelaySec <= 0 {
		cnf.Dispatch.InterTargetDelaySec = 60
	}
	if cnf.Dispatch.TransactionLockTTLMin <= 0 {
		cnf.Dispatch.TransactionLockTTLMin = 15
	}
	if cnf.Dispatch.LockHardCeilingMin <= 0 {
		cnf.Dispatch.LockHardCeilingMin = 30
	}

	if cnf.Cooldown.FollowerHardBlockMin <= 0 {
		cnf.Cooldown.FollowerHardBlockMin = 60
	}
	if cnf.Cooldown.FollowerWarnHours <= 0 {
		cnf.Cooldown.FollowerWarnHours = 24
	}

	if cnf.RateLimit.MaxRequests <= 0 {
		cnf.RateLimit.MaxRequests = 30
	}
	if cnf.RateLimit.IntervalSec <= 0 {
		cnf.RateLimit.IntervalSec = 60
	}
	if cnf.RateLimit.BackoffTimeSec <= 0 {
		cnf.RateLimit.BackoffTimeSec = 5
	}

	if cnf.Scheduler.TransactionSweepSec <= 0 {
		cnf.Scheduler.TransactionSweepSec = 120
	}
	if cnf.Scheduler.OrderRefreshSec <= 0 {
		cnf.Scheduler.OrderRefreshSec = 300
	}
	if cnf.Scheduler.LockSweepSec <= 0 {
		cnf.Scheduler.LockSweepSec = 60
	}
}

// MockConfig sets a mock configuration for testing purposes. Defaults are
// applied but required-field validation is skipped so tests can run without
// a database or redis DSN.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
