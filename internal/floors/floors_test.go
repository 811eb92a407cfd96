package floors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFloor() *Floor {
	return &Floor{
		ID:     "f1",
		Name:   "Ground",
		Status: FloorActive,
		Nodes: []Node{
			{ID: "A", Type: NodeRoom},
			{ID: "B", Type: NodeExit},
		},
		Edges: []Edge{
			{ID: "e1", From: "A", To: "B", Weight: 1},
		},
		Cameras:    []Camera{{ID: "c1", EdgeID: "e1", Status: CameraActive}},
		Screens:    []Screen{{ID: "s1", NodeID: "A", Status: ScreenActive}},
		ExitPoints: []string{"B"},
	}
}

func TestNormalize_ArrayShape(t *testing.T) {
	doc := `{
		"id": "f1",
		"nodes": [{"id":"A"},{"id":"B"}],
		"edges": [{"id":"e1","from":"A","to":"B","weight":1}],
		"cameras": [{"id":"c1","edgeId":"e1"}],
		"screens": [{"id":"s1","nodeId":"A"}],
		"exitPoints": ["B"]
	}`
	f, err := Normalize([]byte(doc))
	require.NoError(t, err)

	// Absent statuses are active.
	assert.Equal(t, FloorActive, f.Status)
	assert.Equal(t, CameraActive, f.Cameras[0].Status)
	assert.Equal(t, ScreenActive, f.Screens[0].Status)
}

func TestNormalize_MapShape(t *testing.T) {
	doc := `{
		"id": "f1",
		"nodes": [{"id":"A"}],
		"cameras": {"c2": {"edgeId":"e1"}, "c1": {"edgeId":"e1"}},
		"screens": {"s1": {"nodeId":"A","name":"Lobby"}}
	}`
	f, err := Normalize([]byte(doc))
	require.NoError(t, err)

	// Ids fill from map keys; output order is stable.
	require.Len(t, f.Cameras, 2)
	assert.Equal(t, "c1", f.Cameras[0].ID)
	assert.Equal(t, "c2", f.Cameras[1].ID)
	assert.Equal(t, "s1", f.Screens[0].ID)
	assert.Equal(t, "Lobby", f.Screens[0].Name)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(validFloor()))

	f := validFloor()
	f.Edges[0].To = "ghost"
	assert.ErrorIs(t, Validate(f), ErrInvalidFloor)

	f = validFloor()
	f.Cameras[0].EdgeID = "ghost"
	assert.ErrorIs(t, Validate(f), ErrInvalidFloor)

	f = validFloor()
	f.Screens[0].NodeID = "ghost"
	assert.ErrorIs(t, Validate(f), ErrInvalidFloor)

	f = validFloor()
	f.ExitPoints = []string{"ghost"}
	assert.ErrorIs(t, Validate(f), ErrInvalidFloor)
}

func TestValidateFleet_CrossFloorUniqueness(t *testing.T) {
	a := validFloor()
	b := validFloor()
	b.ID = "f2"
	// Same node/edge/camera/screen ids on a second floor.
	assert.ErrorIs(t, ValidateFleet([]*Floor{a, b}), ErrInvalidFloor)

	c := &Floor{
		ID:    "f2",
		Nodes: []Node{{ID: "C"}, {ID: "D"}},
		Edges: []Edge{{ID: "e2", From: "C", To: "D"}},
	}
	assert.NoError(t, ValidateFleet([]*Floor{a, c}))
}

func TestFloorHelpers(t *testing.T) {
	f := validFloor()
	f.Cameras = append(f.Cameras, Camera{ID: "c2", EdgeID: "e1", Status: CameraError})

	assert.Len(t, f.ActiveCameras(), 1)
	assert.Equal(t, []string{"A"}, f.StartNodes())

	f.Edges[0].Current = HazardValues{People: 3, Fire: 0.5}
	f.ResetHazards()
	assert.Zero(t, f.Edges[0].Current)

	assert.True(t, f.SetEdgeHazard("e1", HazardValues{Fire: 0.9}))
	assert.Equal(t, 0.9, f.Edges[0].Current.Fire)
	assert.False(t, f.SetEdgeHazard("ghost", HazardValues{}))
}

func TestStartNodes_LegacyFallback(t *testing.T) {
	f := &Floor{
		ID:          "f1",
		Nodes:       []Node{{ID: "A"}},
		StartPoints: []string{"A"},
	}
	assert.Equal(t, []string{"A"}, f.StartNodes())

	// A floor with screens but none active does not fall back.
	f.Screens = []Screen{{ID: "s1", NodeID: "A", Status: ScreenDisabled}}
	assert.Empty(t, f.StartNodes())
}
