package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/agrivo/farmcore/internal/localstore"
	"github.com/agrivo/farmcore/internal/records"
)

// ActionKind is the closed set of write intents an outbox item can carry
type ActionKind string

const (
	ActionCreate ActionKind = "MODULE_CREATE"
	ActionUpdate ActionKind = "MODULE_UPDATE"
	ActionDelete ActionKind = "MODULE_DELETE"
)

// ActionPayload is the JSON body of an outbox item
type ActionPayload struct {
	ModuleKey string                 `json:"module_key"`
	Table     string                 `json:"table"`
	RecordID  string                 `json:"record_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Engine drains the outbox against the record engine and pulls fresh
// snapshots into the local store
type Engine struct {
	records *records.Engine
	store   *localstore.Store
}

// NewEngine creates a sync engine
func NewEngine(recordEngine *records.Engine, store *localstore.Store) *Engine {
	return &Engine{records: recordEngine, store: store}
}

// ReplaySummary reports the outcome of one replay batch
type ReplaySummary struct {
	Attempted int                     `json:"attempted"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Outbox    *localstore.OutboxStats `json:"outbox"`
}

// Replay applies up to limit eligible outbox items in creation order.
// One item's failure never aborts the batch: the item is marked FAILED
// and the loop continues. Replay is at-least-once; a crash between
// applying a write and marking the item DONE re-applies it next pass.
func (e *Engine) Replay(ctx context.Context, limit int) (*ReplaySummary, error) {
	items, err := e.store.Pending(limit)
	if err != nil {
		return nil, err
	}

	summary := &ReplaySummary{Attempted: len(items)}
	if len(items) > 0 {
		log.Printf("🔄 Replay: draining %d outbox item(s)", len(items))
	}

	for _, item := range items {
		if err := e.replayItem(ctx, item); err != nil {
			summary.Failed++
			if markErr := e.store.MarkFailed(item.ID, err.Error()); markErr != nil {
				return nil, markErr
			}
			e.store.AppendSyncLog(localstore.EventReplayFailure, map[string]interface{}{
				"outbox_id":  item.ID,
				"action_key": item.ActionKey,
				"error":      err.Error(),
			})
			log.Printf("⚠️ Replay: item %d failed: %v", item.ID, err)
			continue
		}

		summary.Succeeded++
		if err := e.store.MarkDone(item.ID); err != nil {
			return nil, err
		}
		e.store.AppendSyncLog(localstore.EventReplaySuccess, map[string]interface{}{
			"outbox_id":  item.ID,
			"action_key": item.ActionKey,
		})
	}

	summary.Outbox, err = e.store.OutboxStats()
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// replayItem dispatches one item by action kind. Each arm is its own
// error boundary; anything returned here marks the item FAILED.
func (e *Engine) replayItem(ctx context.Context, item localstore.OutboxItem) error {
	var p ActionPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	actor := records.Actor{UserID: item.UserID, FarmID: item.FarmID}

	switch ActionKind(item.ActionKey) {
	case ActionCreate:
		res, err := e.records.Create(ctx, p.ModuleKey, p.Table, actor, p.Data)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("entity %s/%s is not configured", p.ModuleKey, p.Table)
		}
		return nil
	case ActionUpdate:
		res, err := e.records.Update(ctx, p.ModuleKey, p.Table, actor, p.RecordID, p.Data)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("entity %s/%s is not configured", p.ModuleKey, p.Table)
		}
		return nil
	case ActionDelete:
		res, err := e.records.Delete(ctx, p.ModuleKey, p.Table, actor, p.RecordID)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("entity %s/%s is not configured", p.ModuleKey, p.Table)
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", item.ActionKey)
	}
}
