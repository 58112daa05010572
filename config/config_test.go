package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockConfigAppliesDefaults(t *testing.T) {
	MockConfig(&Configuration{})

	cnf, err := Fetch()
	assert.NoError(t, err)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "new:payment_event", cnf.Queue.PaymentEventQueue)
	assert.Equal(t, 4, cnf.Queue.NumberOfQueues)
	assert.Equal(t, 5, cnf.Dispatch.MaxTargets)
	assert.Equal(t, 60*time.Second, cnf.Dispatch.InterTargetDelay())
	assert.Equal(t, 15*time.Minute, cnf.Dispatch.TransactionLockTTL())
	assert.Equal(t, 30*time.Minute, cnf.Dispatch.LockHardCeiling())
	assert.Equal(t, time.Hour, cnf.Cooldown.HardBlock())
	assert.Equal(t, 24*time.Hour, cnf.Cooldown.Warn())
	assert.Equal(t, 30, cnf.RateLimit.MaxRequests)
	assert.Equal(t, 60*time.Second, cnf.RateLimit.Interval())
	assert.Equal(t, 5*time.Second, cnf.RateLimit.Backoff())
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
}

func TestInitConfigFromEnv(t *testing.T) {
	t.Setenv("BOOSTGRAM_DATA_SOURCE_DNS", "postgres://postgres:@localhost:5432/boostgram")
	t.Setenv("BOOSTGRAM_REDIS_DNS", "localhost:6379")
	t.Setenv("BOOSTGRAM_SERVER_PORT", "4100")
	t.Setenv("BOOSTGRAM_DISPATCH_MAX_TARGETS", "3")

	err := InitConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.NoError(t, err)

	cnf, err := Fetch()
	assert.NoError(t, err)
	assert.Equal(t, "postgres://postgres:@localhost:5432/boostgram", cnf.DataSource.Dns)
	assert.Equal(t, "localhost:6379", cnf.Redis.Dns)
	assert.Equal(t, "4100", cnf.Server.Port)
	assert.Equal(t, 3, cnf.Dispatch.MaxTargets)
}

func TestInitConfigFromFile(t *testing.T) {
	cnf := Configuration{
		ProjectName: "boostgram-test",
		DataSource:  DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/boostgram"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
		Dispatch:    DispatchConfig{InterTargetDelaySec: 5},
	}
	content, err := json.Marshal(cnf)
	assert.NoError(t, err)

	file := filepath.Join(t.TempDir(), "boostgram.json")
	assert.NoError(t, os.WriteFile(file, content, 0o600))

	assert.NoError(t, InitConfig(file))

	loaded, err := Fetch()
	assert.NoError(t, err)
	assert.Equal(t, "boostgram-test", loaded.ProjectName)
	assert.Equal(t, 5*time.Second, loaded.Dispatch.InterTargetDelay())
	// Unset fields still get defaults.
	assert.Equal(t, 5, loaded.Dispatch.MaxTargets)
}

func TestInitConfigRequiresDataSource(t *testing.T) {
	t.Setenv("BOOSTGRAM_REDIS_DNS", "localhost:6379")

	err := InitConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "data source DNS is required")
}

func TestInitConfigRequiresRedis(t *testing.T) {
	t.Setenv("BOOSTGRAM_DATA_SOURCE_DNS", "postgres://postgres:@localhost:5432/boostgram")

	err := InitConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis DNS is required")
}
