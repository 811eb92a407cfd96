package floors

import (
	"time"
)

type FloorStatus string

const (
	FloorActive      FloorStatus = "active"
	FloorDisabled    FloorStatus = "disabled"
	FloorMaintenance FloorStatus = "maintenance"
)

type NodeType string

const (
	NodeRoom     NodeType = "room"
	NodeHall     NodeType = "hall"
	NodeDoor     NodeType = "door"
	NodeEntrance NodeType = "entrance"
	NodeExit     NodeType = "exit"
	NodeJunction NodeType = "junction"
)

type CameraStatus string

const (
	CameraActive      CameraStatus = "active"
	CameraDisabled    CameraStatus = "disabled"
	CameraMaintenance CameraStatus = "maintenance"
	// CameraError is reserved for system-driven auto-disable.
	// Only an operator may clear it.
	CameraError CameraStatus = "error"
)

type ScreenStatus string

const (
	ScreenActive      ScreenStatus = "active"
	ScreenDisabled    ScreenStatus = "disabled"
	ScreenMaintenance ScreenStatus = "maintenance"
)

type Node struct {
	ID   string   `json:"id"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
	Type NodeType `json:"type"`
}

// Thresholds are per-edge hazard trip points.
type Thresholds struct {
	People float64 `json:"people"`
	Fire   float64 `json:"fire"`
	Smoke  float64 `json:"smoke"`
}

// HazardValues is the per-cycle edge snapshot stamped from AI fusion.
type HazardValues struct {
	People float64 `json:"people"`
	Fire   float64 `json:"fire"`
	Smoke  float64 `json:"smoke"`
}

type Edge struct {
	ID         string       `json:"id"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Weight     float64      `json:"weight"`
	Thresholds Thresholds   `json:"thresholds"`
	Current    HazardValues `json:"current"`
}

type Camera struct {
	ID             string       `json:"id"`
	EdgeID         string       `json:"edgeId"`
	StreamURL      string       `json:"streamUrl,omitempty"`
	Status         CameraStatus `json:"status"`
	FailureCount   int          `json:"failureCount"`
	LastFailure    *time.Time   `json:"lastFailure,omitempty"`
	LastSuccess    *time.Time   `json:"lastSuccess,omitempty"`
	DisabledReason string       `json:"disabledReason,omitempty"`
	DisabledAt     *time.Time   `json:"disabledAt,omitempty"`
	DisabledBy     string       `json:"disabledBy,omitempty"`
}

type Screen struct {
	ID     string       `json:"id"`
	NodeID string       `json:"nodeId"`
	Name   string       `json:"name"`
	Status ScreenStatus `json:"status"`
}

// MapImage carries the pixel and metric dimensions used for distance scaling.
type MapImage struct {
	WidthPixels  float64 `json:"widthPixels"`
	HeightPixels float64 `json:"heightPixels"`
	WidthMeters  float64 `json:"widthMeters"`
	HeightMeters float64 `json:"heightMeters"`
	URL          string  `json:"url,omitempty"`
}

type Floor struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      FloorStatus `json:"status"`
	Nodes       []Node      `json:"nodes"`
	Edges       []Edge      `json:"edges"`
	Cameras     []Camera    `json:"cameras"`
	Screens     []Screen    `json:"screens"`
	ExitPoints  []string    `json:"exitPoints"`
	StartPoints []string    `json:"startPoints,omitempty"`
	MapImage    *MapImage   `json:"mapImage,omitempty"`
}

// IsActive reports whether the pipeline should process this floor.
// Legacy documents carry no status; absence means active.
func (f *Floor) IsActive() bool {
	return f.Status == FloorActive || f.Status == ""
}

// ActiveCameras returns the cameras the cycle should capture from.
func (f *Floor) ActiveCameras() []Camera {
	out := make([]Camera, 0, len(f.Cameras))
	for _, c := range f.Cameras {
		if c.Status == CameraActive || c.Status == "" {
			out = append(out, c)
		}
	}
	return out
}

// StartNodes resolves routing start points: active screens, with the
// legacy startPoints list as fallback when no screens are configured.
func (f *Floor) StartNodes() []string {
	starts := make([]string, 0, len(f.Screens))
	for _, s := range f.Screens {
		if s.Status == ScreenActive || s.Status == "" {
			starts = append(starts, s.NodeID)
		}
	}
	if len(starts) == 0 && len(f.Screens) == 0 {
		starts = append(starts, f.StartPoints...)
	}
	return starts
}

// ResetHazards zeroes every edge's current values at the top of a cycle.
func (f *Floor) ResetHazards() {
	for i := range f.Edges {
		f.Edges[i].Current = HazardValues{}
	}
}

// SetEdgeHazard overwrites the snapshot of the edge keyed by id.
// Returns false if the edge is unknown.
func (f *Floor) SetEdgeHazard(edgeID string, v HazardValues) bool {
	for i := range f.Edges {
		if f.Edges[i].ID == edgeID {
			f.Edges[i].Current = v
			return true
		}
	}
	return false
}

// CameraByID returns a pointer into the floor's camera slice.
func (f *Floor) CameraByID(id string) *Camera {
	for i := range f.Cameras {
		if f.Cameras[i].ID == id {
			return &f.Cameras[i]
		}
	}
	return nil
}
