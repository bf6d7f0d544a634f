package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func NewDatabase(ctx context.Context, dsn string, opts Options) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxOpenConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// Schema is applied in order by AutoMigrate. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS team_members (
            id UUID PRIMARY KEY,
            user_id UUID UNIQUE,
            name VARCHAR(100) NOT NULL,
            email VARCHAR(255) UNIQUE NOT NULL,
            password_hash VARCHAR(255) NOT NULL,
            role VARCHAR(16) NOT NULL DEFAULT 'assistant'
                CHECK (role IN ('admin', 'editor', 'manager', 'assistant')),
            avatar TEXT NOT NULL DEFAULT '',
            status VARCHAR(16) NOT NULL DEFAULT 'offline'
                CHECK (status IN ('online', 'busy', 'offline')),
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

	`CREATE TABLE IF NOT EXISTS channels (
            id UUID PRIMARY KEY,
            slug VARCHAR(100) UNIQUE NOT NULL,
            name VARCHAR(100) NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            sender_id UUID REFERENCES team_members(id) ON DELETE CASCADE,
            channel_id UUID REFERENCES channels(id) ON DELETE CASCADE,
            receiver_id UUID REFERENCES team_members(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            read BOOLEAN,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK ((channel_id IS NULL) <> (receiver_id IS NULL))
        )`,

	`CREATE INDEX IF NOT EXISTS messages_channel_created_idx
            ON messages (channel_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS messages_dm_created_idx
            ON messages (sender_id, receiver_id, created_at)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range Schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
