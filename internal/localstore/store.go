package localstore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the embedded, file-backed durable store holding the response
// cache, entity snapshots, the outbox and the sync log. It survives
// process restarts and is shared by all requests; access is serialized
// through a single connection.
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens (or creates) the local store file and migrates its tables
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	// The file is a single shared resource; one connection serializes
	// concurrent callers without further coordination on their side.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&ResponseCacheEntry{},
		&ListSnapshotEntry{},
		&RecordSnapshotEntry{},
		&OutboxItem{},
		&SyncLogEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	log.Printf("📦 Local store ready: %s", path)
	return &Store{db: db, path: path}, nil
}

// Close shuts down the local store
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Stats reports file size and per-table row counts for health endpoints.
// Nothing internal makes decisions from these numbers.
type Stats struct {
	FileSizeBytes   int64 `json:"file_size_bytes"`
	ResponseEntries int64 `json:"response_entries"`
	ListSnapshots   int64 `json:"list_snapshots"`
	RecordSnapshots int64 `json:"record_snapshots"`
	OutboxItems     int64 `json:"outbox_items"`
	SyncLogEntries  int64 `json:"sync_log_entries"`
}

// Stats returns aggregate store statistics
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	if info, err := os.Stat(s.path); err == nil {
		stats.FileSizeBytes = info.Size()
	}

	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&ResponseCacheEntry{}, &stats.ResponseEntries},
		{&ListSnapshotEntry{}, &stats.ListSnapshots},
		{&RecordSnapshotEntry{}, &stats.RecordSnapshots},
		{&OutboxItem{}, &stats.OutboxItems},
		{&SyncLogEntry{}, &stats.SyncLogEntries},
	}
	for _, c := range counts {
		if err := s.db.Model(c.model).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	return stats, nil
}
