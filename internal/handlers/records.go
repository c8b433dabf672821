package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/localstore"
	"github.com/agrivo/farmcore/internal/middleware"
	"github.com/agrivo/farmcore/internal/modules"
	"github.com/agrivo/farmcore/internal/records"
	"github.com/agrivo/farmcore/internal/syncengine"
	"github.com/gorilla/mux"
)

// lastKnownGoodMaxAge bounds how old a cached snapshot may be and still
// be served as a degraded-mode fallback
const lastKnownGoodMaxAge = 30 * 24 * time.Hour

// reservedListParams are query keys with fixed meaning; everything else
// becomes an equality filter
var reservedListParams = map[string]bool{
	"page": true, "page_size": true, "search": true, "sort_by": true, "sort_dir": true,
}

// requireAccess resolves the caller identity and checks the role map for
// the requested module action. Writes the error response itself.
func (r *Router) requireAccess(w http.ResponseWriter, req *http.Request, action modules.Action) (*middleware.Identity, string, string, bool) {
	identity, ok := middleware.GetIdentity(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return nil, "", "", false
	}

	vars := mux.Vars(req)
	moduleKey, table := vars["module"], vars["table"]
	if !modules.RoleCan(identity.Role, moduleKey, action) {
		respondError(w, http.StatusForbidden, "Insufficient permissions for this module")
		return nil, "", "", false
	}
	return identity, moduleKey, table, true
}

// parseListQuery builds a normalized list query from URL parameters. Page
// and size are clamped here so the cache fingerprint matches what the
// record engine will actually execute.
func parseListQuery(req *http.Request) records.ListQuery {
	q := records.ListQuery{Page: 1, PageSize: 20}
	params := req.URL.Query()

	if v, err := strconv.Atoi(params.Get("page")); err == nil && v > 1 {
		q.Page = v
	}
	if v, err := strconv.Atoi(params.Get("page_size")); err == nil && v > 0 {
		q.PageSize = v
	}
	if q.PageSize > 1000 {
		q.PageSize = 1000
	}
	q.Search = params.Get("search")
	q.SortBy = params.Get("sort_by")
	q.SortDir = params.Get("sort_dir")

	for key, vals := range params {
		if reservedListParams[key] || len(vals) == 0 {
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string]interface{})
		}
		q.Filters[key] = vals[0]
	}
	return q
}

// canonicalListQuery is the fingerprint form of a list query. Zero-value
// fields are omitted so a plain first-page request collides with the
// snapshot the pull engine writes for the same page size.
func canonicalListQuery(q records.ListQuery) map[string]interface{} {
	m := map[string]interface{}{
		"page":      q.Page,
		"page_size": q.PageSize,
	}
	if q.Search != "" {
		m["search"] = q.Search
	}
	if q.SortBy != "" {
		m["sort_by"] = q.SortBy
	}
	if q.SortDir != "" {
		m["sort_dir"] = q.SortDir
	}
	if len(q.Filters) > 0 {
		m["filters"] = q.Filters
	}
	return m
}

// listData serves a page of records, falling back to the local snapshot
// cache when the primary store is unavailable
func (r *Router) listData(w http.ResponseWriter, req *http.Request) {
	identity, moduleKey, table, ok := r.requireAccess(w, req, modules.ActionRead)
	if !ok {
		return
	}

	q := parseListQuery(req)
	actor := records.Actor{UserID: identity.UserID, FarmID: identity.FarmID}
	fingerprint := localstore.FingerprintQuery(canonicalListQuery(q))

	res, err := r.engine.List(req.Context(), moduleKey, table, actor, q)
	if err == nil {
		if res == nil {
			respondError(w, http.StatusNotFound, "Unknown module or table")
			return
		}
		if putErr := r.store.ListSnapshotPut(moduleKey, table, identity.FarmID, fingerprint, res); putErr != nil {
			log.Printf("⚠️ List snapshot write-through failed for %s/%s: %v", moduleKey, table, putErr)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"source": "live",
			"stale":  false,
			"data":   res,
		})
		return
	}

	if !apperr.IsUnavailable(err) {
		respondAppError(w, err)
		return
	}

	// Primary store is down: serve the last known good snapshot. An
	// exact fingerprint match wins; otherwise any recent snapshot for
	// the entity is better than nothing.
	cached, found, cacheErr := r.store.ListSnapshotGet(moduleKey, table, identity.FarmID, fingerprint, lastKnownGoodMaxAge)
	if cacheErr == nil && !found {
		cached, found, cacheErr = r.store.ListSnapshotLatest(moduleKey, table, identity.FarmID, lastKnownGoodMaxAge)
	}
	if cacheErr != nil || !found {
		respondError(w, http.StatusServiceUnavailable, "Primary store unavailable and no cached data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source": "cache",
		"stale":  true,
		"data":   cached,
	})
}

// getData serves a single record with record-snapshot fallback
func (r *Router) getData(w http.ResponseWriter, req *http.Request) {
	identity, moduleKey, table, ok := r.requireAccess(w, req, modules.ActionRead)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]
	actor := records.Actor{UserID: identity.UserID, FarmID: identity.FarmID}

	res, err := r.engine.GetByID(req.Context(), moduleKey, table, actor, id)
	if err == nil {
		if res == nil {
			respondError(w, http.StatusNotFound, "Unknown module or table")
			return
		}
		if res.Record == nil {
			respondError(w, http.StatusNotFound, "Record not found")
			return
		}
		if putErr := r.store.RecordSnapshotPut(moduleKey, table, identity.FarmID, id, res.Record); putErr != nil {
			log.Printf("⚠️ Record snapshot write-through failed for %s/%s/%s: %v", moduleKey, table, id, putErr)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"source": "live",
			"stale":  false,
			"record": res.Record,
		})
		return
	}

	if !apperr.IsUnavailable(err) {
		respondAppError(w, err)
		return
	}

	cached, found, cacheErr := r.store.RecordSnapshotGet(moduleKey, table, identity.FarmID, id, lastKnownGoodMaxAge)
	if cacheErr != nil || !found {
		respondError(w, http.StatusServiceUnavailable, "Primary store unavailable and no cached data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source": "cache",
		"stale":  true,
		"record": cached,
	})
}

// createData inserts a record, or queues the write when the primary
// store is unavailable
func (r *Router) createData(w http.ResponseWriter, req *http.Request) {
	identity, moduleKey, table, ok := r.requireAccess(w, req, modules.ActionWrite)
	if !ok {
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	actor := records.Actor{UserID: identity.UserID, FarmID: identity.FarmID}
	res, err := r.engine.Create(req.Context(), moduleKey, table, actor, payload)
	if err == nil {
		if res == nil {
			respondError(w, http.StatusNotFound, "Unknown module or table")
			return
		}
		if res.Record != nil {
			recordID := strconv.FormatInt(res.ID, 10)
			if putErr := r.store.RecordSnapshotPut(moduleKey, table, identity.FarmID, recordID, res.Record); putErr != nil {
				log.Printf("⚠️ Record snapshot write-through failed for %s/%s/%s: %v", moduleKey, table, recordID, putErr)
			}
		}
		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"source": "live",
			"data":   res,
		})
		return
	}

	if !apperr.IsUnavailable(err) {
		respondAppError(w, err)
		return
	}

	r.queueWrite(w, syncengine.ActionCreate, syncengine.ActionPayload{
		ModuleKey: moduleKey,
		Table:     table,
		Data:      payload,
	}, identity)
}

// updateData applies a partial update, or queues it when the primary
// store is unavailable
func (r *Router) updateData(w http.ResponseWriter, req *http.Request) {
	identity, moduleKey, table, ok := r.requireAccess(w, req, modules.ActionWrite)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]

	var payload map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	actor := records.Actor{UserID: identity.UserID, FarmID: identity.FarmID}
	res, err := r.engine.Update(req.Context(), moduleKey, table, actor, id, payload)
	if err == nil {
		if res == nil {
			respondError(w, http.StatusNotFound, "Unknown module or table")
			return
		}
		if res.Record != nil {
			if putErr := r.store.RecordSnapshotPut(moduleKey, table, identity.FarmID, id, res.Record); putErr != nil {
				log.Printf("⚠️ Record snapshot write-through failed for %s/%s/%s: %v", moduleKey, table, id, putErr)
			}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"source": "live",
			"data":   res,
		})
		return
	}

	if !apperr.IsUnavailable(err) {
		respondAppError(w, err)
		return
	}

	r.queueWrite(w, syncengine.ActionUpdate, syncengine.ActionPayload{
		ModuleKey: moduleKey,
		Table:     table,
		RecordID:  id,
		Data:      payload,
	}, identity)
}

// deleteData removes a record, or queues the delete when the primary
// store is unavailable
func (r *Router) deleteData(w http.ResponseWriter, req *http.Request) {
	identity, moduleKey, table, ok := r.requireAccess(w, req, modules.ActionDelete)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]
	actor := records.Actor{UserID: identity.UserID, FarmID: identity.FarmID}

	res, err := r.engine.Delete(req.Context(), moduleKey, table, actor, id)
	if err == nil {
		if res == nil {
			respondError(w, http.StatusNotFound, "Unknown module or table")
			return
		}
		if delErr := r.store.RecordSnapshotDelete(moduleKey, table, identity.FarmID, id); delErr != nil {
			log.Printf("⚠️ Record snapshot delete failed for %s/%s/%s: %v", moduleKey, table, id, delErr)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"source":   "live",
			"affected": res.Affected,
		})
		return
	}

	if !apperr.IsUnavailable(err) {
		respondAppError(w, err)
		return
	}

	// Queue the delete and drop the local snapshot optimistically so a
	// degraded-mode read does not resurrect the record
	if delErr := r.store.RecordSnapshotDelete(moduleKey, table, identity.FarmID, id); delErr != nil {
		log.Printf("⚠️ Record snapshot delete failed for %s/%s/%s: %v", moduleKey, table, id, delErr)
	}
	r.queueWrite(w, syncengine.ActionDelete, syncengine.ActionPayload{
		ModuleKey: moduleKey,
		Table:     table,
		RecordID:  id,
	}, identity)
}

// queueWrite enqueues an offline write intent and answers 202 Accepted
func (r *Router) queueWrite(w http.ResponseWriter, kind syncengine.ActionKind, payload syncengine.ActionPayload, identity *middleware.Identity) {
	outboxID, err := r.store.Enqueue(string(kind), payload, identity.UserID, identity.FarmID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to queue offline write")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":    true,
		"outbox_id": outboxID,
		"message":   "Primary store unavailable; the write was queued and will replay automatically",
	})
}

// getSchema returns the network-safe field descriptors for an entity,
// with response-cache fallback when the catalog cannot be read
func (r *Router) getSchema(w http.ResponseWriter, req *http.Request) {
	_, moduleKey, table, ok := r.requireAccess(w, req, modules.ActionRead)
	if !ok {
		return
	}
	cacheKey := "schema:" + moduleKey + ":" + table

	s, err := r.engine.Schema(moduleKey, table)
	if err == nil {
		if s == nil {
			respondError(w, http.StatusNotFound, "Unknown module or table")
			return
		}
		payload := map[string]interface{}{
			"module":      moduleKey,
			"table":       table,
			"primary_key": s.PrimaryKey,
			"has_farm_id": s.HasFarmID,
			"fields":      s.FieldDescriptors(),
		}
		if putErr := r.store.ResponsePut(cacheKey, payload); putErr != nil {
			log.Printf("⚠️ Schema cache write-through failed for %s/%s: %v", moduleKey, table, putErr)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"source": "live",
			"stale":  false,
			"schema": payload,
		})
		return
	}

	if !apperr.IsUnavailable(err) {
		respondAppError(w, err)
		return
	}

	cached, found, cacheErr := r.store.ResponseGet(cacheKey, lastKnownGoodMaxAge)
	if cacheErr != nil || !found {
		respondError(w, http.StatusServiceUnavailable, "Primary store unavailable and no cached data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source": "cache",
		"stale":  true,
		"schema": cached,
	})
}
