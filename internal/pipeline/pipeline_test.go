package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-evac/internal/ai"
	"github.com/technosupport/ts-evac/internal/config"
	"github.com/technosupport/ts-evac/internal/data"
	"github.com/technosupport/ts-evac/internal/dispatch"
	"github.com/technosupport/ts-evac/internal/floors"
	"github.com/technosupport/ts-evac/internal/health"
	"github.com/technosupport/ts-evac/internal/routing"
	"github.com/technosupport/ts-evac/internal/settings"
)

// script records the order of pipeline side effects.
type script struct {
	mu     sync.Mutex
	events []string
}

func (s *script) add(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *script) indexOf(e string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, got := range s.events {
		if got == e {
			return i
		}
	}
	return -1
}

type fakeAcquirer struct {
	s    *script
	fail map[string]error
}

func (a *fakeAcquirer) Acquire(_ context.Context, _, _, cameraID, _ string) (string, error) {
	if err := a.fail[cameraID]; err != nil {
		return "", err
	}
	a.s.add("acquire:" + cameraID)
	return "/tmp/" + cameraID + ".jpg", nil
}

type fakePlacer struct{}

func (fakePlacer) Place(_, _, cameraID string, _ time.Time) (string, string, error) {
	return "rel/" + cameraID + ".jpg", "/abs/" + cameraID + ".jpg", nil
}

type fakeFuser struct {
	s       *script
	values  map[string]floors.HazardValues
	offline bool // both detectors down
}

func (f *fakeFuser) Fuse(_ context.Context, req ai.Request, _ bool) ai.FusionResult {
	f.s.add("fuse:" + req.CameraID)
	if f.offline {
		return ai.FusionResult{}
	}
	return ai.FusionResult{Values: f.values[req.CameraID], LocalOK: true}
}

type memFloors struct {
	list    []*floors.Floor
	upserts int
}

func (m *memFloors) List(context.Context) ([]*floors.Floor, error) { return m.list, nil }
func (m *memFloors) Upsert(context.Context, *floors.Floor) error {
	m.upserts++
	return nil
}

type memImages struct {
	recs []data.ImageRecord
}

func (m *memImages) Insert(_ context.Context, rec *data.ImageRecord) error {
	m.recs = append(m.recs, *rec)
	return nil
}

type memRoutes struct {
	s       *script
	docs    []*data.RouteDocument
	timings map[string]data.CycleTiming
}

func (m *memRoutes) Insert(_ context.Context, doc *data.RouteDocument) error {
	doc.ID = "r1"
	m.s.add("persist")
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memRoutes) UpdateTiming(_ context.Context, id string, t data.CycleTiming) error {
	if m.timings == nil {
		m.timings = make(map[string]data.CycleTiming)
	}
	m.timings[id] = t
	return nil
}

type fakeDispatcher struct {
	s       *script
	envs    []dispatch.Envelope
	outcome dispatch.Outcome
}

func (d *fakeDispatcher) Dispatch(_ context.Context, env dispatch.Envelope) dispatch.Outcome {
	d.s.add("dispatch")
	d.envs = append(d.envs, env)
	return d.outcome
}

type staticSettings struct{ s settings.Settings }

func (s staticSettings) Get(context.Context) settings.Settings { return s.s }

type recordingAlerts struct {
	emergencies []string
}

func (a *recordingAlerts) Emergency(floorID, _ string) {
	a.emergencies = append(a.emergencies, floorID)
}

func testFloor() *floors.Floor {
	return &floors.Floor{
		ID:     "f1",
		Name:   "Ground",
		Status: floors.FloorActive,
		Nodes: []floors.Node{
			{ID: "A", X: 0, Y: 0, Type: floors.NodeRoom},
			{ID: "B", X: 10, Y: 0, Type: floors.NodeExit},
		},
		Edges: []floors.Edge{
			{ID: "e1", From: "A", To: "B", Weight: 10,
				Thresholds: floors.Thresholds{People: 10, Fire: 0.7, Smoke: 0.6}},
		},
		Cameras:    []floors.Camera{{ID: "c1", EdgeID: "e1", Status: floors.CameraActive}},
		Screens:    []floors.Screen{{ID: "s1", NodeID: "A", Status: floors.ScreenActive}},
		ExitPoints: []string{"B"},
	}
}

func testCycle(s *script, f *floors.Floor, fuse *fakeFuser, acq *fakeAcquirer) (*Cycle, *memFloors, *memImages, *memRoutes, *fakeDispatcher, *recordingAlerts) {
	fl := &memFloors{list: []*floors.Floor{f}}
	img := &memImages{}
	rt := &memRoutes{s: s}
	disp := &fakeDispatcher{s: s}
	al := &recordingAlerts{}
	c := &Cycle{
		Cfg:      config.Config{LocalStorageDir: "data/frames"},
		Weights:  config.NewWeightStore(config.DefaultWeights()),
		Floors:   fl,
		Images:   img,
		Routes:   rt,
		Settings: staticSettings{s: settings.Defaults()},
		Acquirer: acq,
		Placer:   fakePlacer{},
		Fuser:    fuse,
		Health:   health.NewTracker(3, nil),
		Dispatch: disp,
		Alerts:   al,
	}
	return c, fl, img, rt, disp, al
}

func TestRunFloor_PersistsBeforeDispatch(t *testing.T) {
	s := &script{}
	f := testFloor()
	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{}}
	c, _, _, rt, disp, _ := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	// Capture, fusion, persistence, dispatch, strictly in that order.
	assert.Less(t, s.indexOf("acquire:c1"), s.indexOf("fuse:c1"))
	assert.Less(t, s.indexOf("fuse:c1"), s.indexOf("persist"))
	assert.Less(t, s.indexOf("persist"), s.indexOf("dispatch"))

	require.Len(t, rt.docs, 1)
	require.Len(t, disp.envs, 1)
	assert.Equal(t, rt.docs[0].ComputedAt, disp.envs[0].Timestamp)
}

func TestRunFloor_FusedHazardsDriveEmergency(t *testing.T) {
	s := &script{}
	f := testFloor()
	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{
		"c1": {Fire: 0.9}, // above the 0.7 threshold
	}}
	c, _, _, rt, disp, al := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	require.Len(t, rt.docs, 1)
	doc := rt.docs[0]
	assert.True(t, doc.Emergency)
	assert.Equal(t, routing.HazardCritical, doc.OverallHazardLevel)
	require.Len(t, doc.Routes, 1)
	assert.True(t, doc.Routes[0].ExceedsThresholds)

	assert.True(t, disp.envs[0].Emergency)
	assert.Equal(t, []string{"f1"}, al.emergencies)
}

// A fire on a corridor the routes detour around raises no emergency:
// the flag follows the assigned routes, not the whole floor.
func TestRunFloor_DetouredFireIsNotEmergency(t *testing.T) {
	s := &script{}
	f := &floors.Floor{
		ID:     "f1",
		Name:   "Ground",
		Status: floors.FloorActive,
		Nodes: []floors.Node{
			{ID: "A", X: 0, Y: 0, Type: floors.NodeRoom},
			{ID: "B", X: 10, Y: 0},
			{ID: "C", X: 0, Y: 10},
			{ID: "E", X: 10, Y: 10, Type: floors.NodeExit},
		},
		Edges: []floors.Edge{
			{ID: "ab", From: "A", To: "B", Weight: 1, Thresholds: floors.Thresholds{Fire: 0.7, Smoke: 0.6}},
			{ID: "be", From: "B", To: "E", Weight: 1},
			{ID: "ac", From: "A", To: "C", Weight: 1},
			{ID: "ce", From: "C", To: "E", Weight: 1},
		},
		Cameras:    []floors.Camera{{ID: "c1", EdgeID: "ab", Status: floors.CameraActive}},
		Screens:    []floors.Screen{{ID: "s1", NodeID: "A", Status: floors.ScreenActive}},
		ExitPoints: []string{"E"},
	}
	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{
		"c1": {Fire: 0.9}, // burning, but only on the A-B corridor
	}}
	c, _, _, rt, disp, al := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	require.Len(t, rt.docs, 1)
	doc := rt.docs[0]
	require.Len(t, doc.Routes, 1)
	assert.Equal(t, []string{"A", "C", "E"}, doc.Routes[0].Path)
	assert.False(t, doc.Routes[0].ExceedsThresholds)

	assert.False(t, doc.Emergency)
	assert.False(t, disp.envs[0].Emergency)
	assert.Empty(t, al.emergencies)
}

func TestRunFloor_NoScreensOrExitsSkipsRoutes(t *testing.T) {
	s := &script{}
	f := testFloor()
	f.Screens = nil

	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{}}
	c, _, img, rt, disp, _ := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	// Cameras are still observed; no route document, no push, no radio.
	require.Len(t, img.recs, 1)
	assert.Empty(t, rt.docs)
	assert.Empty(t, disp.envs)

	f2 := testFloor()
	f2.ExitPoints = nil
	require.NoError(t, c.RunFloor(context.Background(), f2, settings.Defaults()))
	assert.Empty(t, rt.docs)
	assert.Empty(t, disp.envs)
}

func TestRunFloor_DetectorOutageStillRecordsObservation(t *testing.T) {
	s := &script{}
	f := testFloor()
	fuse := &fakeFuser{s: s, offline: true}
	c, _, img, rt, _, _ := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	// Both detectors down reads as "no hazard observed", not "no record".
	require.Len(t, img.recs, 1)
	assert.True(t, img.recs[0].Processed)
	assert.Zero(t, img.recs[0].Fused)

	require.Len(t, rt.docs, 1)
	assert.False(t, rt.docs[0].Emergency)
}

func TestRunFloor_ResetsStaleHazards(t *testing.T) {
	s := &script{}
	f := testFloor()
	f.Edges[0].Current = floors.HazardValues{Fire: 0.9} // from a previous cycle

	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{}}
	acq := &fakeAcquirer{s: s, fail: map[string]error{"c1": errors.New("stream down")}}
	c, fl, _, rt, _, _ := testCycle(s, f, fuse, acq)

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	// The dead camera contributes nothing; yesterday's fire is gone.
	assert.Zero(t, f.Edges[0].Current)
	assert.False(t, rt.docs[0].Emergency)

	assert.Equal(t, 1, f.Cameras[0].FailureCount)
	assert.Equal(t, 1, fl.upserts)
}

func TestRunFloor_CameraFailureIsolated(t *testing.T) {
	s := &script{}
	f := testFloor()
	f.Nodes = append(f.Nodes, floors.Node{ID: "C", X: 5, Y: 5})
	f.Edges = append(f.Edges, floors.Edge{ID: "e2", From: "A", To: "C", Weight: 5,
		Thresholds: floors.Thresholds{Fire: 0.7}})
	f.Cameras = append(f.Cameras, floors.Camera{ID: "c2", EdgeID: "e2", Status: floors.CameraActive})

	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{"c2": {Fire: 0.3}}}
	acq := &fakeAcquirer{s: s, fail: map[string]error{"c1": errors.New("stream down")}}
	c, _, img, _, _, _ := testCycle(s, f, fuse, acq)

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	// c1's failure never blocks c2's observation.
	require.Len(t, img.recs, 1)
	assert.Equal(t, "c2", img.recs[0].CameraID)
	assert.Equal(t, 0.3, f.Edges[1].Current.Fire)
	assert.Equal(t, 1, f.Cameras[0].FailureCount)
	assert.Equal(t, 0, f.Cameras[1].FailureCount)
}

func TestRunFloor_MultipleCamerasPeakPerEdge(t *testing.T) {
	s := &script{}
	f := testFloor()
	f.Cameras = append(f.Cameras, floors.Camera{ID: "c2", EdgeID: "e1", Status: floors.CameraActive})

	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{
		"c1": {Fire: 0.2, People: 4},
		"c2": {Fire: 0.5, People: 1},
	}}
	c, _, _, _, _, _ := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	// Worst observation per field wins.
	assert.Equal(t, 0.5, f.Edges[0].Current.Fire)
	assert.Equal(t, float64(4), f.Edges[0].Current.People)
}

func TestRunFloor_AutoDisableAtThreshold(t *testing.T) {
	s := &script{}
	f := testFloor()
	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{}}
	acq := &fakeAcquirer{s: s, fail: map[string]error{"c1": errors.New("stream down")}}
	c, _, _, _, _, _ := testCycle(s, f, fuse, acq)
	c.Health = health.NewTracker(2, nil)

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))
	assert.Equal(t, floors.CameraActive, f.Cameras[0].Status)

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))
	assert.Equal(t, floors.CameraError, f.Cameras[0].Status)
	assert.Equal(t, health.DisabledBySystem, f.Cameras[0].DisabledBy)

	// A disabled camera is skipped on the next cycle.
	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))
	assert.Equal(t, 2, f.Cameras[0].FailureCount)
}

func TestRunFloor_RadioTimingRecorded(t *testing.T) {
	s := &script{}
	f := testFloor()
	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{}}
	c, _, _, rt, disp, _ := testCycle(s, f, fuse, &fakeAcquirer{s: s})
	disp.outcome = dispatch.Outcome{RadioInvoked: true, RadioTime: 5 * time.Millisecond}

	require.NoError(t, c.RunFloor(context.Background(), f, settings.Defaults()))

	timing := rt.timings["r1"]
	require.NotNil(t, timing.RadioOK)
	assert.True(t, *timing.RadioOK)
	assert.Equal(t, int64(5), timing.RadioMs)
}

func TestRun_SkipsInactiveFloors(t *testing.T) {
	s := &script{}
	f := testFloor()
	f.Status = floors.FloorDisabled

	fuse := &fakeFuser{s: s, values: map[string]floors.HazardValues{}}
	c, _, _, rt, _, _ := testCycle(s, f, fuse, &fakeAcquirer{s: s})

	c.Run(context.Background())
	assert.Empty(t, rt.docs)
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(context.Context) {
	close(b.started)
	<-b.release
}

func TestScheduler_BusyTickSkipped(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	sched := NewScheduler(time.Hour, r)

	done := make(chan bool)
	go func() { done <- sched.Tick(context.Background()) }()
	<-r.started

	// Overlapping tick is refused while the first is in flight.
	assert.False(t, sched.Tick(context.Background()))

	close(r.release)
	assert.True(t, <-done)

	// Once idle, ticks run again.
	r.started = make(chan struct{})
	r.release = make(chan struct{})
	close(r.release)
	assert.True(t, sched.Tick(context.Background()))
}
