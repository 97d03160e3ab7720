package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/glebarez/sqlite"
	"github.com/jon4hz/chartwise/internal/config"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the storage interface used by the engine.
type DB interface {
	UserDB
	ChartDB
	StatsDB
	Close() error
}

var _ DB = (*Client)(nil) // Ensure Client implements DB

// Client wraps the gorm.DB instance.
type Client struct {
	db *gorm.DB
}

// New connects to the configured database and performs migrations.
// The initial connection is retried with a fixed delay.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*Client, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if log.GetLevel() <= log.DebugLevel {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	delay := cfg.ConnectRetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewConstant(delay))

	var db *gorm.DB
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		conn, err := gorm.Open(dialector, gormCfg)
		if err == nil {
			err = ping(ctx, conn)
		}
		if err != nil {
			log.Warn("failed to connect database, retrying", "driver", cfg.Driver, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&User{},
		&Chart{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debug("database ready", "driver", cfg.Driver, "attempts", attempt)
	return &Client{db: db}, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DatabaseDriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case config.DatabaseDriverSQLite, "":
		if cfg.Path != ":memory:" && !strings.HasPrefix(cfg.Path, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn := cfg.Path
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
