package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "voicekhata")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

// DSN renders the lib/pq connection string.
func (c *DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// InitDB opens and pings the database connection
func InitDB(ctx context.Context, log *zap.Logger) (*sql.DB, error) {
	config := GetConfig()

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	log.Info("database connection established",
		zap.String("host", config.Host),
		zap.String("database", config.Name))
	return db, nil
}

// schemaStatements creates the udhaar tables. Entries are never deleted;
// undo only flips reversed.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id          BIGSERIAL PRIMARY KEY,
		shop_phone  TEXT NOT NULL,
		name        TEXT NOT NULL,
		name_norm   TEXT NOT NULL,
		link_token  TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (shop_phone, name_norm)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                BIGSERIAL PRIMARY KEY,
		customer_id       BIGINT NOT NULL REFERENCES customers(id),
		shop_phone        TEXT NOT NULL,
		amount            NUMERIC(14,2) NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		raw_text          TEXT,
		transcript        TEXT,
		source_message_id TEXT,
		reversed          BOOLEAN NOT NULL DEFAULT false,
		reversed_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_shop_active
		ON ledger_entries (shop_phone, created_at DESC) WHERE reversed = false`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_customer ON ledger_entries (customer_id)`,
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
