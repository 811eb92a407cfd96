package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-evac/internal/routing"
)

// RouteDocument is the immutable, append-only result of one floor cycle.
type RouteDocument struct {
	ID                 string              `json:"id"`
	FloorID            string              `json:"floorId"`
	ComputedAt         time.Time           `json:"computedAt"`
	Routes             []routing.Route     `json:"routes"`
	Emergency          bool                `json:"emergency"`
	OverallHazardLevel routing.HazardLevel `json:"overallHazardLevel"`
	Timing             CycleTiming         `json:"_timing"`
}

// CycleTiming is the per-cycle instrumentation side channel.
type CycleTiming struct {
	CaptureMs  int64 `json:"captureMs"`
	FusionMs   int64 `json:"fusionMs"`
	RoutingMs  int64 `json:"routingMs"`
	PersistMs  int64 `json:"persistMs"`
	DispatchMs int64 `json:"dispatchMs"`
	RadioMs    int64 `json:"radioMs,omitempty"`
	RadioOK    *bool `json:"radioOk,omitempty"`
}

type RouteModel struct {
	DB DBTX
}

func (m RouteModel) Insert(ctx context.Context, doc *RouteDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("route document marshal: %w", err)
	}

	query := `INSERT INTO route_documents (id, floor_id, computed_at, doc) VALUES ($1, $2, $3, $4)`
	_, err = m.DB.ExecContext(ctx, query, doc.ID, doc.FloorID, doc.ComputedAt, body)
	return err
}

// UpdateTiming patches the instrumentation side channel after dispatch,
// once the post-persist phase durations are known.
func (m RouteModel) UpdateTiming(ctx context.Context, id string, timing CycleTiming) error {
	body, err := json.Marshal(timing)
	if err != nil {
		return fmt.Errorf("timing marshal: %w", err)
	}

	query := `UPDATE route_documents SET doc = jsonb_set(doc, '{_timing}', $2) WHERE id = $1`
	_, err = m.DB.ExecContext(ctx, query, id, body)
	return err
}

// Latest returns the most recent route document for a floor.
func (m RouteModel) Latest(ctx context.Context, floorID string) (*RouteDocument, error) {
	query := `
		SELECT doc FROM route_documents
		WHERE floor_id = $1
		ORDER BY computed_at DESC
		LIMIT 1`

	var body []byte
	err := m.DB.QueryRowContext(ctx, query, floorID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc RouteDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("route document parse: %w", err)
	}
	return &doc, nil
}

func (m RouteModel) ListRaw(ctx context.Context) ([]Doc, error) {
	return listRaw(ctx, m.DB, `SELECT id, doc FROM route_documents ORDER BY id`)
}
