package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agrivo/farmcore/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps gorm.DB for the primary relational store
type DB struct {
	*gorm.DB
}

// Connect opens the primary MySQL connection pool. The connection is lazy:
// startup succeeds even while the store is unreachable, so the API can boot
// straight into degraded mode and serve from the local cache.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN: buildDSN(cfg),
		// Skip the version handshake so Open does not require the server
		// to be reachable at boot time.
		SkipInitializeWithVersion: true,
		DefaultStringSize:         255,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Printf("🌐 Primary store configured: %s:%s/%s", cfg.Host, cfg.Port, cfg.Database)

	return &DB{DB: db}, nil
}

// buildDSN formats the driver connection string. clientFoundRows makes
// UPDATE report matched rows instead of changed rows, so writing values
// identical to the stored row is not mistaken for a missing record.
func buildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC&clientFoundRows=true",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}

// Ping checks primary store reachability with a short timeout
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close shuts down the connection pool
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
