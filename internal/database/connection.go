package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"cater/internal/config"
	"cater/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	db *gorm.DB
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Init initializes the database connection with connection pooling
func Init() error {
	cfg := config.Get()

	conn, err := Open(&cfg.Database)
	if err != nil {
		return err
	}
	db = conn

	// Test connection
	if err := testConnection(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	log.Println("[DB] Running database migrations...")
	if err := Migrate(db); err != nil {
		return err
	}

	log.Println("[DB] Database connected and migrated successfully")
	return nil
}

// Open connects to the database named by cfg without touching the package
// level handle.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	// Determine database type
	if cfg.IsPostgres() {
		log.Println("[DB] Connecting to PostgreSQL database...")
		dialector = postgres.Open(cfg.GetPostgresDSN())
	} else {
		log.Println("[DB] Connecting to SQLite database...")
		d, err := sqliteDialector(cfg.GetSQLitePath())
		if err != nil {
			return nil, err
		}
		dialector = d
	}

	conn, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	if cfg.IsPostgres() {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
		sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

		log.Printf("[DB] Connection pool configured: maxOpen=%d, maxIdle=%d", maxOpenConns, maxIdleConns)
	} else {
		// SQLite allows a single writer; serialize through one connection.
		sqlDB.SetMaxOpenConns(1)
	}

	return conn, nil
}

// OpenSQLite opens and migrates a SQLite database at path. Pass ":memory:"
// for a throwaway database.
func OpenSQLite(path string) (*gorm.DB, error) {
	d, err := sqliteDialector(path)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(d, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func sqliteDialector(path string) (gorm.Dialector, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
		Conn:       sqlDB,
	}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Never log SQL; queries carry customer phone numbers and message bodies.
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	}
}

// Migrate creates or updates the schema for every model
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&domain.User{},
		&domain.Customer{},
		&domain.Booking{},
		&domain.Feedback{},
		&domain.MessageLog{},
		&domain.OutboundService{},
		&domain.FollowUp{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// At most one active outbound service.
	err = conn.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_outbound_services_single_active " +
		"ON outbound_services (active) WHERE active = true").Error
	if err != nil {
		return fmt.Errorf("failed to create active service index: %w", err)
	}
	return nil
}

// testConnection tests the database connection
func testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	if db == nil {
		log.Fatal("Database not initialized. Call database.Init() first.")
	}
	return db
}

// HealthCheck performs a database health check
func HealthCheck() error {
	return testConnection()
}

// GetStats returns database connection statistics
func GetStats() (*sql.DBStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	stats := sqlDB.Stats()
	return &stats, nil
}
