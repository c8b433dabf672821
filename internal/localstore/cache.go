package localstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FingerprintQuery produces a stable hash for a query object. The value
// is canonicalized through JSON, whose map encoding sorts keys
// recursively, so equivalent queries built in different key order
// collide on the same snapshot entry.
func FingerprintQuery(query interface{}) string {
	canonical, err := json.Marshal(query)
	if err != nil {
		canonical = []byte("{}")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// fresh applies the read-time staleness policy: an entry is usable only
// when it was written within maxAge. Stale entries are left in place for
// callers with a larger tolerance.
func fresh(updatedAt time.Time, maxAge time.Duration) bool {
	return time.Since(updatedAt) <= maxAge
}

func marshalPayload(payload interface{}) ([]byte, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

// ResponsePut stores a composite response payload, overwriting any
// previous entry under the same key
func (s *Store) ResponsePut(key string, payload interface{}) error {
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	entry := ResponseCacheEntry{
		CacheKey:  key,
		Payload:   body,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
}

// ResponseGet returns the cached payload when it is younger than maxAge.
// A stale entry is not deleted; it simply does not qualify.
func (s *Store) ResponseGet(key string, maxAge time.Duration) (json.RawMessage, bool, error) {
	var entry ResponseCacheEntry
	err := s.db.Where("cache_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !fresh(entry.UpdatedAt, maxAge) {
		return nil, false, nil
	}
	return json.RawMessage(entry.Payload), true, nil
}

// ListSnapshotPut stores a paged list response under its query fingerprint
func (s *Store) ListSnapshotPut(module, table string, farm int64, fingerprint string, payload interface{}) error {
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	entry := ListSnapshotEntry{
		Module:           module,
		Table:            table,
		Farm:             farm,
		QueryFingerprint: fingerprint,
		Payload:          body,
		UpdatedAt:        time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
}

// ListSnapshotGet returns the snapshot for an exact query fingerprint
func (s *Store) ListSnapshotGet(module, table string, farm int64, fingerprint string, maxAge time.Duration) (json.RawMessage, bool, error) {
	var entry ListSnapshotEntry
	err := s.db.
		Where("module = ? AND `table` = ? AND farm = ? AND query_fingerprint = ?", module, table, farm, fingerprint).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !fresh(entry.UpdatedAt, maxAge) {
		return nil, false, nil
	}
	return json.RawMessage(entry.Payload), true, nil
}

// ListSnapshotLatest returns the most recent snapshot for an entity
// regardless of fingerprint, for best-effort fallback when the exact
// query was never cached
func (s *Store) ListSnapshotLatest(module, table string, farm int64, maxAge time.Duration) (json.RawMessage, bool, error) {
	var entry ListSnapshotEntry
	err := s.db.
		Where("module = ? AND `table` = ? AND farm = ?", module, table, farm).
		Order("updated_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !fresh(entry.UpdatedAt, maxAge) {
		return nil, false, nil
	}
	return json.RawMessage(entry.Payload), true, nil
}

// RecordSnapshotPut stores a single-record payload
func (s *Store) RecordSnapshotPut(module, table string, farm int64, recordID string, payload interface{}) error {
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	entry := RecordSnapshotEntry{
		Module:    module,
		Table:     table,
		Farm:      farm,
		RecordID:  recordID,
		Payload:   body,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
}

// RecordSnapshotGet returns a record snapshot younger than maxAge
func (s *Store) RecordSnapshotGet(module, table string, farm int64, recordID string, maxAge time.Duration) (json.RawMessage, bool, error) {
	var entry RecordSnapshotEntry
	err := s.db.
		Where("module = ? AND `table` = ? AND farm = ? AND record_id = ?", module, table, farm, recordID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !fresh(entry.UpdatedAt, maxAge) {
		return nil, false, nil
	}
	return json.RawMessage(entry.Payload), true, nil
}

// RecordSnapshotDelete removes a record snapshot. Used when a record is
// deleted online, and optimistically when a delete is queued offline.
func (s *Store) RecordSnapshotDelete(module, table string, farm int64, recordID string) error {
	return s.db.
		Where("module = ? AND `table` = ? AND farm = ? AND record_id = ?", module, table, farm, recordID).
		Delete(&RecordSnapshotEntry{}).Error
}
