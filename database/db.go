package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/boostgram/boostgram/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates every table the pipeline needs. Idempotent; safe to run at
// every startup.
func Migrate(db *sql.DB) error {
	steps := []func(*sql.DB) error{
		createProviderTable,
		createTransactionTable,
		createOrderTable,
		createLockTable,
		createDuplicatePostTable,
		createTransactionLogTable,
	}
	for _, step := range steps {
		if err := step(db); err != nil {
			return err
		}
	}
	return nil
}

func createTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			payment_id TEXT,
			service_id TEXT,
			service_name TEXT,
			service_kind TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			order_created BOOLEAN NOT NULL DEFAULT FALSE,
			duplicate_of TEXT,
			username TEXT,
			link TEXT,
			quantity BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating transactions table: %v", err)
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transactions_payment ON transactions(payment_id)`)
	return err
}

func createOrderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
			provider_id TEXT NOT NULL,
			external_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			quantity BIGINT NOT NULL DEFAULT 0,
			link TEXT,
			post_code TEXT,
			username TEXT,
			error_message TEXT,
			connection_error BOOLEAN NOT NULL DEFAULT FALSE,
			needs_attention BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating orders table: %v", err)
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_transaction ON orders(transaction_id)`)
	return err
}

func createProviderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS providers (
			id SERIAL PRIMARY KEY,
			provider_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			api_url TEXT NOT NULL,
			api_key TEXT NOT NULL,
			legacy_api BOOLEAN NOT NULL DEFAULT FALSE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createLockTable backs the dispatch lock manager. The UNIQUE constraint on
// lock_key is the whole mechanism: acquisition is an insert that conflicts
// when someone else holds the key.
func createLockTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_locks (
			id SERIAL PRIMARY KEY,
			lock_key TEXT NOT NULL UNIQUE,
			holder TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL
		)
	`)
	log.Println(err)
	return err
}

func createDuplicatePostTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS duplicate_posts (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			kept_key TEXT NOT NULL,
			dropped_key TEXT NOT NULL,
			matched_on TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

func createTransactionLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transaction_logs (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			message TEXT NOT NULL,
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}
