package localstore

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox item statuses. DONE is terminal; FAILED items stay eligible
// for replay exactly like PENDING.
const (
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
	StatusDone    = "DONE"
)

// Sync log event types
const (
	EventEnqueue       = "ENQUEUE"
	EventReplaySuccess = "REPLAY_SUCCESS"
	EventReplayFailure = "REPLAY_FAILURE"
	EventPullFailure   = "PULL_FAILURE"
)

// ResponseCacheEntry caches whole composite responses by opaque key
type ResponseCacheEntry struct {
	CacheKey  string         `gorm:"primaryKey;type:varchar(255)" json:"cache_key"`
	Payload   datatypes.JSON `json:"payload"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name
func (ResponseCacheEntry) TableName() string {
	return "response_cache"
}

// ListSnapshotEntry caches a full paged list response per query shape
type ListSnapshotEntry struct {
	Module           string         `gorm:"primaryKey;type:varchar(50)" json:"module"`
	Table            string         `gorm:"primaryKey;type:varchar(100);column:table" json:"table"`
	Farm             int64          `gorm:"primaryKey" json:"farm"`
	QueryFingerprint string         `gorm:"primaryKey;type:varchar(64)" json:"query_fingerprint"`
	Payload          datatypes.JSON `json:"payload"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName specifies the table name
func (ListSnapshotEntry) TableName() string {
	return "entity_list_cache"
}

// RecordSnapshotEntry caches a single record payload
type RecordSnapshotEntry struct {
	Module    string         `gorm:"primaryKey;type:varchar(50)" json:"module"`
	Table     string         `gorm:"primaryKey;type:varchar(100);column:table" json:"table"`
	Farm      int64          `gorm:"primaryKey" json:"farm"`
	RecordID  string         `gorm:"primaryKey;type:varchar(100)" json:"record_id"`
	Payload   datatypes.JSON `json:"payload"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name
func (RecordSnapshotEntry) TableName() string {
	return "entity_record_cache"
}

// OutboxItem is a durable write intent that could not be applied to the
// primary store. Items are never deleted; DONE rows remain as an audit
// trail.
type OutboxItem struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ActionKey string         `gorm:"type:varchar(50);not null" json:"action_key"`
	Payload   datatypes.JSON `json:"payload"`
	UserID    int64          `gorm:"not null" json:"user_id"`
	FarmID    int64          `gorm:"not null" json:"farm_id"`
	Attempts  int            `gorm:"default:0" json:"attempts"`
	Status    string         `gorm:"type:varchar(20);default:'PENDING';index:idx_outbox_status" json:"status"`
	LastError string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name
func (OutboxItem) TableName() string {
	return "outbox"
}

// SyncLogEntry is an append-only diagnostic event. The system writes
// these and never reads them back.
type SyncLogEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventType string         `gorm:"type:varchar(50);not null" json:"event_type"`
	Detail    datatypes.JSON `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName specifies the table name
func (SyncLogEntry) TableName() string {
	return "sync_log"
}
