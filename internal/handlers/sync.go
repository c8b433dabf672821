package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agrivo/farmcore/internal/middleware"
	"github.com/agrivo/farmcore/internal/syncengine"
)

// replayOutbox drains queued offline writes against the primary store
func (r *Router) replayOutbox(w http.ResponseWriter, req *http.Request) {
	if _, ok := middleware.GetIdentity(req.Context()); !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body struct {
		Limit int `json:"limit"`
	}
	// An empty body is fine; the configured default applies
	json.NewDecoder(req.Body).Decode(&body)
	limit := body.Limit
	if limit <= 0 {
		limit = r.cfg.Sync.ReplayLimit
	}

	summary, err := r.sync.Replay(req.Context(), limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// pullSnapshots refreshes the local cache for the caller's readable
// modules while the primary store is reachable
func (r *Router) pullSnapshots(w http.ResponseWriter, req *http.Request) {
	identity, ok := middleware.GetIdentity(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body struct {
		Modules  []string `json:"modules"`
		PageSize int      `json:"page_size"`
	}
	json.NewDecoder(req.Body).Decode(&body)
	size := body.PageSize
	if size <= 0 {
		size = r.cfg.Sync.PullPageSize
	}

	report, err := r.sync.PullEntitySnapshots(req.Context(), syncengine.PullOptions{
		UserID:     identity.UserID,
		FarmID:     identity.FarmID,
		Role:       identity.Role,
		ModuleKeys: body.Modules,
		PageSize:   size,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// syncStatus reports outbox depth and primary store reachability
func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	if _, ok := middleware.GetIdentity(req.Context()); !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	outbox, err := r.store.OutboxStats()
	if err != nil {
		respondAppError(w, err)
		return
	}

	storeStatus := "ok"
	if pingErr := r.db.Ping(req.Context()); pingErr != nil {
		storeStatus = "unavailable"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"primary_store": storeStatus,
		"outbox":        outbox,
	})
}

// cacheStats reports local cache size and row counts
func (r *Router) cacheStats(w http.ResponseWriter, req *http.Request) {
	if _, ok := middleware.GetIdentity(req.Context()); !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	stats, err := r.store.Stats()
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
