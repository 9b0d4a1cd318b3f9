package database

import (
	"context"
	"fmt"
	"time"

	"medtrack/internal/logging"
	"medtrack/internal/utils"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Options tune how the connection is opened
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions retries five times, five seconds apart
var DefaultOptions = Options{MaxRetries: 5, RetryDelay: 5 * time.Second}

// Open connects to postgres, retrying while the database comes up, and configures the pool
func Open(ctx context.Context, dsn, env string, log *zap.Logger, opts Options) (*gorm.DB, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	gormConfig := &gorm.Config{
		Logger: utils.NewCustomGormLogger(logging.NewGormLogger(log, env), utils.DefaultIgnoredQueries...),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt:            true,
		SkipDefaultTransaction: false,
	}

	var db *gorm.DB
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(opts.MaxRetries-1), retry.NewConstant(opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			log.Warn("Database connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database connection established")
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
