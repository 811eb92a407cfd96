package floors

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Stored floor documents come in two historical shapes: cameras/screens as
// plain arrays, or as maps keyed by id (the original admin tool wrote maps).
// Normalize resolves both into the single in-memory representation; the
// pipeline never sees the legacy shape.

type rawFloor struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      FloorStatus     `json:"status"`
	Nodes       []Node          `json:"nodes"`
	Edges       []Edge          `json:"edges"`
	Cameras     json.RawMessage `json:"cameras"`
	Screens     json.RawMessage `json:"screens"`
	ExitPoints  []string        `json:"exitPoints"`
	StartPoints []string        `json:"startPoints"`
	MapImage    *MapImage       `json:"mapImage"`
}

// Normalize parses a stored floor document, accepting both shapes.
func Normalize(doc []byte) (*Floor, error) {
	var raw rawFloor
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("floor document parse: %w", err)
	}

	f := &Floor{
		ID:          raw.ID,
		Name:        raw.Name,
		Status:      raw.Status,
		Nodes:       raw.Nodes,
		Edges:       raw.Edges,
		ExitPoints:  raw.ExitPoints,
		StartPoints: raw.StartPoints,
		MapImage:    raw.MapImage,
	}
	if f.Status == "" {
		f.Status = FloorActive
	}

	cams, err := normalizeCameras(raw.Cameras)
	if err != nil {
		return nil, fmt.Errorf("floor %s cameras: %w", raw.ID, err)
	}
	f.Cameras = cams

	screens, err := normalizeScreens(raw.Screens)
	if err != nil {
		return nil, fmt.Errorf("floor %s screens: %w", raw.ID, err)
	}
	f.Screens = screens

	return f, nil
}

func normalizeCameras(raw json.RawMessage) ([]Camera, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Camera
	if err := json.Unmarshal(raw, &list); err == nil {
		for i := range list {
			if list[i].Status == "" {
				list[i].Status = CameraActive
			}
		}
		return list, nil
	}

	// Legacy map-of-ids shape.
	var byID map[string]Camera
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, err
	}
	list = make([]Camera, 0, len(byID))
	for id, c := range byID {
		if c.ID == "" {
			c.ID = id
		}
		if c.Status == "" {
			c.Status = CameraActive
		}
		list = append(list, c)
	}
	// Map iteration order is random; keep the output stable.
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func normalizeScreens(raw json.RawMessage) ([]Screen, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Screen
	if err := json.Unmarshal(raw, &list); err == nil {
		for i := range list {
			if list[i].Status == "" {
				list[i].Status = ScreenActive
			}
		}
		return list, nil
	}

	var byID map[string]Screen
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, err
	}
	list = make([]Screen, 0, len(byID))
	for id, s := range byID {
		if s.ID == "" {
			s.ID = id
		}
		if s.Status == "" {
			s.Status = ScreenActive
		}
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}
