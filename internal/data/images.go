package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-evac/internal/floors"
)

// ImageRecord is the persisted outcome of one capture: where the frame
// lives and what the fused detectors saw.
type ImageRecord struct {
	ID         string              `json:"id"`
	FloorID    string              `json:"floorId"`
	CameraID   string              `json:"cameraId"`
	EdgeID     string              `json:"edgeId"`
	LocalPath  string              `json:"localPath"`
	CloudURL   string              `json:"cloudUrl,omitempty"`
	Width      int                 `json:"width,omitempty"`
	Height     int                 `json:"height,omitempty"`
	Fused      floors.HazardValues `json:"fused"`
	Processed  bool                `json:"processed"`
	CapturedAt time.Time           `json:"capturedAt"`
}

type ImageModel struct {
	DB DBTX
}

func (m ImageModel) Insert(ctx context.Context, rec *ImageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("image record marshal: %w", err)
	}

	query := `INSERT INTO image_records (id, doc) VALUES ($1, $2)`
	_, err = m.DB.ExecContext(ctx, query, rec.ID, doc)
	return err
}

func (m ImageModel) ListRaw(ctx context.Context) ([]Doc, error) {
	return listRaw(ctx, m.DB, `SELECT id, doc FROM image_records ORDER BY id`)
}
