package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aolo2/desk/internal/db"
	"github.com/aolo2/desk/internal/room"
)

type API struct {
	registry *room.Registry
	store    *db.Store
}

func New(registry *room.Registry, store *db.Store) *API {
	return &API{
		registry: registry,
		store:    store,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_desks":    a.registry.RoomCount(),
		"active_sessions": a.registry.SessionCount(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}

	if a.store != nil {
		storeStats, err := a.store.GetStats()
		if err == nil {
			stats["total_desks"] = storeStats["desk_count"]
			stats["total_strokes"] = storeStats["stroke_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Desk handlers

type DeskResponse struct {
	DeskID      int64 `json:"desk_id"`
	StrokeCount int   `json:"stroke_count"`
	ActiveUsers int   `json:"active_users"`
}

func (a *API) ListDesksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	desks, err := a.store.ListDesks(limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list desks")
		return
	}

	active := a.registry.ActiveDesks()

	response := make([]DeskResponse, len(desks))
	seen := make(map[int64]bool, len(desks))
	for i, d := range desks {
		response[i] = DeskResponse{
			DeskID:      d.DeskID,
			StrokeCount: d.StrokeCount,
			ActiveUsers: active[d.DeskID],
		}
		seen[d.DeskID] = true
	}

	// Desks with live sessions but nothing persisted yet still count.
	for deskID, users := range active {
		if !seen[deskID] {
			response = append(response, DeskResponse{DeskID: deskID, ActiveUsers: users})
		}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"desks":  response,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) GetDeskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Extract desk ID from path: /api/desks/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/desks/")
	rawID := strings.TrimSuffix(path, "/")

	deskID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Desk ID must be an integer")
		return
	}

	count, err := a.store.StrokeCount(deskID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get desk")
		return
	}

	active := a.registry.ActiveDesks()

	jsonResponse(w, http.StatusOK, DeskResponse{
		DeskID:      deskID,
		StrokeCount: count,
		ActiveUsers: active[deskID],
	})
}

func (a *API) DesksRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/desks")

	// /api/desks or /api/desks/
	if path == "" || path == "/" {
		a.ListDesksHandler(w, r)
		return
	}

	// /api/desks/{id}
	a.GetDeskHandler(w, r)
}
