package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL and creates the schema if needed.
func ConnectPostgres(postgresURI string) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	if err = PostgresDB.Ping(); err != nil {
		return err
	}

	log.Println("✅ Connected to PostgreSQL")

	return InitPostgresTables()
}

// InitPostgresTables creates the user table and its indexes if they don't exist.
// The pseudo is the primary key; social sets are text arrays and the unread
// counters and settings are JSONB, so a mutation is a single keyed upsert.
func InitPostgresTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			pseudo VARCHAR(20) PRIMARY KEY,
			password_digest VARCHAR(255) NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			age INTEGER NOT NULL DEFAULT 0,
			sex VARCHAR(20) NOT NULL DEFAULT '',
			avatar TEXT NOT NULL DEFAULT '',
			status VARCHAR(100) NOT NULL DEFAULT '',
			banned BOOLEAN NOT NULL DEFAULT FALSE,
			friends TEXT[] NOT NULL DEFAULT '{}',
			requests TEXT[] NOT NULL DEFAULT '{}',
			blocked TEXT[] NOT NULL DEFAULT '{}',
			unread JSONB NOT NULL DEFAULT '{}',
			settings JSONB NOT NULL DEFAULT '{}'
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_banned ON users(banned)`,
		`CREATE INDEX IF NOT EXISTS idx_users_joined_at ON users(joined_at)`,
	}

	for _, query := range queries {
		if _, err := PostgresDB.Exec(query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection.
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}
