package syncengine

import (
	"context"
	"fmt"
	"log"

	"github.com/agrivo/farmcore/internal/localstore"
	"github.com/agrivo/farmcore/internal/modules"
	"github.com/agrivo/farmcore/internal/records"
	"github.com/google/uuid"
)

const (
	minPullPageSize   = 10
	maxPullPageSize   = 250
	maxFailureDetails = 200
)

// PullOptions scopes a snapshot pull to one authenticated caller
type PullOptions struct {
	UserID     int64
	FarmID     int64
	Role       string
	ModuleKeys []string // optional filter; empty means every readable module
	PageSize   int
}

// PullFailure records one entity that could not be pulled
type PullFailure struct {
	Module string `json:"module"`
	Table  string `json:"table"`
	Error  string `json:"error"`
}

// PullReport aggregates a snapshot pull
type PullReport struct {
	ReportID          string                  `json:"report_id"`
	ModulesConsidered int                     `json:"modules_considered"`
	EntitiesSynced    int                     `json:"entities_synced"`
	RowsCached        int                     `json:"rows_cached"`
	Failures          int                     `json:"failures"`
	FailureDetails    []PullFailure           `json:"failure_details,omitempty"`
	Cache             *localstore.Stats       `json:"cache"`
	Outbox            *localstore.OutboxStats `json:"outbox"`
}

// PullQuery returns the canonical first-page query used for snapshot
// pulls, so handlers and the pull engine fingerprint identically
func PullQuery(pageSize int) map[string]interface{} {
	return map[string]interface{}{"page": 1, "page_size": pageSize}
}

// PullEntitySnapshots refreshes the local list and record snapshots for
// every module the caller may read, intersected with an optional module
// filter. Per-entity failures are isolated: they are counted and logged
// but never abort the pull of other entities.
func (e *Engine) PullEntitySnapshots(ctx context.Context, opts PullOptions) (*PullReport, error) {
	size := opts.PageSize
	if size < minPullPageSize {
		size = minPullPageSize
	}
	if size > maxPullPageSize {
		size = maxPullPageSize
	}

	filter := make(map[string]bool, len(opts.ModuleKeys))
	for _, key := range opts.ModuleKeys {
		filter[key] = true
	}

	report := &PullReport{ReportID: uuid.NewString()}
	actor := records.Actor{UserID: opts.UserID, FarmID: opts.FarmID}

	for _, mod := range modules.AllModules() {
		if len(filter) > 0 && !filter[mod.Key] {
			continue
		}
		if !modules.RoleCan(opts.Role, mod.Key, modules.ActionRead) {
			continue
		}
		report.ModulesConsidered++

		for _, entity := range mod.Entities {
			rows, err := e.pullEntity(ctx, mod.Key, entity.Table, actor, size)
			if err != nil {
				report.Failures++
				if len(report.FailureDetails) < maxFailureDetails {
					report.FailureDetails = append(report.FailureDetails, PullFailure{
						Module: mod.Key,
						Table:  entity.Table,
						Error:  err.Error(),
					})
				}
				e.store.AppendSyncLog(localstore.EventPullFailure, map[string]interface{}{
					"module": mod.Key,
					"table":  entity.Table,
					"error":  err.Error(),
				})
				continue
			}
			report.EntitiesSynced++
			report.RowsCached += rows
		}
	}

	var err error
	if report.Cache, err = e.store.Stats(); err != nil {
		return nil, err
	}
	if report.Outbox, err = e.store.OutboxStats(); err != nil {
		return nil, err
	}

	log.Printf("📥 Pull %s: %d entities, %d rows cached, %d failures",
		report.ReportID, report.EntitiesSynced, report.RowsCached, report.Failures)
	return report, nil
}

// pullEntity snapshots the first page of one entity and writes through
// to the list and record caches
func (e *Engine) pullEntity(ctx context.Context, moduleKey, table string, actor records.Actor, pageSize int) (int, error) {
	res, err := e.records.List(ctx, moduleKey, table, actor, records.ListQuery{Page: 1, PageSize: pageSize})
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, fmt.Errorf("entity %s/%s is not configured", moduleKey, table)
	}

	fingerprint := localstore.FingerprintQuery(PullQuery(pageSize))
	if err := e.store.ListSnapshotPut(moduleKey, table, actor.FarmID, fingerprint, res); err != nil {
		return 0, err
	}

	cached := 0
	for _, row := range res.Rows {
		if res.PrimaryKey == "" {
			break
		}
		id, ok := row[res.PrimaryKey]
		if !ok || id == nil {
			continue
		}
		recordID := fmt.Sprintf("%v", id)
		if err := e.store.RecordSnapshotPut(moduleKey, table, actor.FarmID, recordID, row); err != nil {
			return cached, err
		}
		cached++
	}
	return cached, nil
}
