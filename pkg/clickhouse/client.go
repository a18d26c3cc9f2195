package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Config describes the connection. The session always starts in the
// "default" database so that a store can create its own database on first
// use; stores qualify table names themselves.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	UseHTTP      bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	MaxExecTime  time.Duration // 0 leaves the server default
	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 9000
		if c.UseHTTP {
			c.Port = 8123
		}
	}
	if c.User == "" {
		c.User = "default"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	return c
}

func (c Config) options() *ch.Options {
	opts := &ch.Options{
		Addr:        []string{net.JoinHostPort(c.Host, strconv.Itoa(c.Port))},
		Auth:        ch.Auth{Database: "default", Username: c.User, Password: c.Password},
		Protocol:    ch.Native,
		DialTimeout: c.DialTimeout,
		ReadTimeout: c.ReadTimeout,
		Settings:    ch.Settings{},
	}
	if c.UseHTTP {
		opts.Protocol = ch.HTTP
	}
	if c.MaxExecTime > 0 {
		opts.Settings["max_execution_time"] = int(c.MaxExecTime.Seconds())
	}
	return opts
}

// Client owns a ClickHouse connection pool.
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and pings the server.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}
	cfg = cfg.withDefaults()

	db := ch.OpenDB(cfg.options())
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
