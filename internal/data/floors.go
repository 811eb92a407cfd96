package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/technosupport/ts-evac/internal/floors"
)

// FloorModel stores floor documents as JSONB keyed by the floor id.
// Reads normalize legacy document shapes into the single in-memory form.
type FloorModel struct {
	DB DBTX
}

func (m FloorModel) Get(ctx context.Context, id string) (*floors.Floor, error) {
	query := `SELECT doc FROM floors WHERE id = $1`

	var doc []byte
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return floors.Normalize(doc)
}

// List returns every floor, normalized, ordered by id for deterministic
// per-tick processing.
func (m FloorModel) List(ctx context.Context) ([]*floors.Floor, error) {
	query := `SELECT doc FROM floors ORDER BY id`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*floors.Floor
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		f, err := floors.Normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Upsert persists the normalized floor back, converting to the current
// document shape.
func (m FloorModel) Upsert(ctx context.Context, f *floors.Floor) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("floor marshal: %w", err)
	}

	query := `
		INSERT INTO floors (id, doc, updated_at)
		VALUES ($1, $2, NOW() AT TIME ZONE 'UTC')
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`

	_, err = m.DB.ExecContext(ctx, query, f.ID, doc)
	return err
}

// ListRaw reads every stored document for replication, keyed by floor id.
func (m FloorModel) ListRaw(ctx context.Context) ([]Doc, error) {
	return listRaw(ctx, m.DB, `SELECT id, doc FROM floors ORDER BY id`)
}

func listRaw(ctx context.Context, db DBTX, query string) ([]Doc, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		var d Doc
		if err := rows.Scan(&d.ID, &d.Doc); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
