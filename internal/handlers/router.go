package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/config"
	"github.com/agrivo/farmcore/internal/database"
	"github.com/agrivo/farmcore/internal/localstore"
	"github.com/agrivo/farmcore/internal/middleware"
	"github.com/agrivo/farmcore/internal/modules"
	"github.com/agrivo/farmcore/internal/records"
	"github.com/agrivo/farmcore/internal/schema"
	"github.com/agrivo/farmcore/internal/syncengine"
	"github.com/gorilla/mux"
)

// Router wraps the mux router and the service dependencies
type Router struct {
	*mux.Router
	db           *database.DB
	store        *localstore.Store
	engine       *records.Engine
	sync         *syncengine.Engine
	introspector *schema.Introspector
	cfg          *config.Config
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, store *localstore.Store, engine *records.Engine, sync *syncengine.Engine, introspector *schema.Introspector, cfg *config.Config) *Router {
	r := &Router{
		Router:       mux.NewRouter(),
		db:           db,
		store:        store,
		engine:       engine,
		sync:         sync,
		introspector: introspector,
		cfg:          cfg,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")

	// API routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	api.HandleFunc("/modules", r.listModules).Methods("GET")
	api.HandleFunc("/schema/{module}/{table}", r.getSchema).Methods("GET")

	// Generic record routes
	api.HandleFunc("/data/{module}/{table}", r.listData).Methods("GET")
	api.HandleFunc("/data/{module}/{table}", r.createData).Methods("POST")
	api.HandleFunc("/data/{module}/{table}/{id}", r.getData).Methods("GET")
	api.HandleFunc("/data/{module}/{table}/{id}", r.updateData).Methods("PUT")
	api.HandleFunc("/data/{module}/{table}/{id}", r.deleteData).Methods("DELETE")

	// Sync routes
	api.HandleFunc("/sync/replay", r.replayOutbox).Methods("POST")
	api.HandleFunc("/sync/pull", r.pullSnapshots).Methods("POST")
	api.HandleFunc("/sync/status", r.syncStatus).Methods("GET")
	api.HandleFunc("/cache/stats", r.cacheStats).Methods("GET")

	// Admin routes
	api.HandleFunc("/admin/schema-cache", r.clearSchemaCache).Methods("DELETE")

	return r
}

// healthCheck reports API liveness and primary store reachability.
// The API stays healthy while the store is down; degraded mode is the
// whole point of the local cache.
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()

	storeStatus := "ok"
	if err := r.db.Ping(ctx); err != nil {
		storeStatus = "unavailable"
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"primary_store": storeStatus,
	})
}

// listModules returns the modules the caller's role may read
func (r *Router) listModules(w http.ResponseWriter, req *http.Request) {
	identity, ok := middleware.GetIdentity(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var visible []modules.Module
	for _, mod := range modules.AllModules() {
		if modules.RoleCan(identity.Role, mod.Key, modules.ActionRead) {
			visible = append(visible, mod)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"modules": visible})
}

// clearSchemaCache drops introspected schemas so the next request
// re-reads the catalog. Admin only.
func (r *Router) clearSchemaCache(w http.ResponseWriter, req *http.Request) {
	identity, ok := middleware.GetIdentity(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if identity.Role != "admin" {
		respondError(w, http.StatusForbidden, "Admin role required")
		return
	}

	r.introspector.Cache().Clear()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAppError maps a classified error to an HTTP status
func respondAppError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		respondError(w, http.StatusBadRequest, err.Error())
	case apperr.Forbidden:
		respondError(w, http.StatusForbidden, err.Error())
	case apperr.NotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case apperr.Unavailable:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
