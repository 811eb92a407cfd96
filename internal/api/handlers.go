package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/technosupport/ts-evac/internal/data"
	"github.com/technosupport/ts-evac/internal/dispatch"
	"github.com/technosupport/ts-evac/internal/floors"
	"github.com/technosupport/ts-evac/internal/health"
	"github.com/technosupport/ts-evac/internal/replicate"
	"github.com/technosupport/ts-evac/internal/settings"
)

type FloorStore interface {
	Get(ctx context.Context, id string) (*floors.Floor, error)
	List(ctx context.Context) ([]*floors.Floor, error)
	Upsert(ctx context.Context, f *floors.Floor) error
}

type RouteReader interface {
	Latest(ctx context.Context, floorID string) (*data.RouteDocument, error)
}

type SettingsStore interface {
	Get(ctx context.Context) settings.Settings
	Put(ctx context.Context, s settings.Settings) error
}

type SyncRunner interface {
	Run(ctx context.Context) error
}

// Handler serves the admin and display-facing REST surface.
type Handler struct {
	Floors   FloorStore
	Routes   RouteReader
	Settings SettingsStore
	Selector *dispatch.Selector
	Sync     SyncRunner
	Health   *health.Tracker
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListFloors returns every floor, normalized.
func (h *Handler) ListFloors(w http.ResponseWriter, r *http.Request) {
	all, err := h.Floors.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "floor list failed")
		return
	}
	if all == nil {
		all = []*floors.Floor{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) GetFloor(w http.ResponseWriter, r *http.Request) {
	f, err := h.Floors.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, data.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "floor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "floor read failed")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// PutFloor replaces a floor document. The body may be any accepted
// document shape; it is normalized and validated before storage.
func (h *Handler) PutFloor(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	f, err := floors.Normalize(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.ID = chi.URLParam(r, "id")
	if err := floors.Validate(f); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.Floors.Upsert(r.Context(), f); err != nil {
		writeError(w, http.StatusInternalServerError, "floor write failed")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// LatestRoutes serves the newest route envelope for a floor: the cache
// first, the route document store when the cache is cold.
func (h *Handler) LatestRoutes(w http.ResponseWriter, r *http.Request) {
	floorID := chi.URLParam(r, "id")

	if h.Selector != nil {
		if env := h.Selector.CachedEnvelope(r.Context(), floorID); env != nil {
			writeJSON(w, http.StatusOK, env)
			return
		}
	}

	doc, err := h.Routes.Latest(r.Context(), floorID)
	if errors.Is(err, data.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "no routes computed yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "route read failed")
		return
	}
	env := dispatch.Envelope{
		FloorID:            doc.FloorID,
		Routes:             doc.Routes,
		Emergency:          doc.Emergency,
		OverallHazardLevel: doc.OverallHazardLevel,
		Timestamp:          doc.ComputedAt,
		TotalRoutes:        len(doc.Routes),
	}
	if f, ferr := h.Floors.Get(r.Context(), floorID); ferr == nil {
		env.FloorName = f.Name
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Get(r.Context()))
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var s settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "malformed settings")
		return
	}
	if err := h.Settings.Put(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "settings write failed")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// TriggerSync starts a replication run outside the schedule. The run
// happens in the background; an in-flight run is reported, not queued.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "cloud sync not configured")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.Sync.Run(ctx); err != nil && !errors.Is(err, replicate.ErrSyncInProgress) {
			log.Printf("[API] manual cloud sync failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type resetRequest struct {
	Operator string `json:"operator"`
}

// ResetCamera clears a camera's error status and failure counter. This
// is the only path out of the auto-disabled state.
func (h *Handler) ResetCamera(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "id")

	var req resetRequest
	json.NewDecoder(r.Body).Decode(&req)
	if req.Operator == "" {
		req.Operator = "operator"
	}

	all, err := h.Floors.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "floor list failed")
		return
	}
	for _, f := range all {
		cam := f.CameraByID(cameraID)
		if cam == nil {
			continue
		}
		h.Health.Reset(cam, req.Operator)
		if err := h.Floors.Upsert(r.Context(), f); err != nil {
			writeError(w, http.StatusInternalServerError, "camera state write failed")
			return
		}
		writeJSON(w, http.StatusOK, cam)
		return
	}
	writeError(w, http.StatusNotFound, "camera not found")
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
