package localstore

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"
)

// OutboxStats summarizes queue state by status
type OutboxStats struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
	Done    int64 `json:"done"`
	Total   int64 `json:"total"`
}

// Enqueue durably records a write intent that could not be applied to
// the primary store. Local storage is assumed always available; failure
// here is not a handled condition.
func (s *Store) Enqueue(actionKey string, payload interface{}, userID, farmID int64) (uint, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return 0, err
	}

	item := OutboxItem{
		ActionKey: actionKey,
		Payload:   body,
		UserID:    userID,
		FarmID:    farmID,
		Status:    StatusPending,
	}
	if err := s.db.Create(&item).Error; err != nil {
		return 0, err
	}

	s.AppendSyncLog(EventEnqueue, map[string]interface{}{
		"outbox_id":  item.ID,
		"action_key": actionKey,
		"farm_id":    farmID,
	})

	log.Printf("📮 Outbox: queued %s as item %d", actionKey, item.ID)
	return item.ID, nil
}

// Pending returns up to limit items eligible for replay, oldest first.
// FAILED items are eligible exactly like PENDING ones.
func (s *Store) Pending(limit int) ([]OutboxItem, error) {
	var items []OutboxItem
	err := s.db.
		Where("status IN ?", []string{StatusPending, StatusFailed}).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// MarkDone transitions an item to its terminal state
func (s *Store) MarkDone(id uint) error {
	return s.db.Model(&OutboxItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusDone,
			"last_error": "",
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkFailed records a replay failure; the item stays retryable
func (s *Store) MarkFailed(id uint, errMsg string) error {
	return s.db.Model(&OutboxItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusFailed,
			"last_error": errMsg,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

// OutboxStats returns per-status counts
func (s *Store) OutboxStats() (*OutboxStats, error) {
	stats := &OutboxStats{}
	counts := []struct {
		status string
		dest   *int64
	}{
		{StatusPending, &stats.Pending},
		{StatusFailed, &stats.Failed},
		{StatusDone, &stats.Done},
	}
	for _, c := range counts {
		if err := s.db.Model(&OutboxItem{}).Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	stats.Total = stats.Pending + stats.Failed + stats.Done
	return stats, nil
}

// AppendSyncLog writes a diagnostic event. Best-effort: a sync log
// failure never fails the operation being logged.
func (s *Store) AppendSyncLog(eventType string, detail map[string]interface{}) {
	body, err := json.Marshal(detail)
	if err != nil {
		body = []byte("{}")
	}
	entry := SyncLogEntry{
		EventType: eventType,
		Detail:    body,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("⚠️ Sync log write failed: %v", err)
	}
}
