package pipeline

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/technosupport/ts-evac/internal/ai"
	"github.com/technosupport/ts-evac/internal/capture"
	"github.com/technosupport/ts-evac/internal/config"
	"github.com/technosupport/ts-evac/internal/data"
	"github.com/technosupport/ts-evac/internal/dispatch"
	"github.com/technosupport/ts-evac/internal/floors"
	"github.com/technosupport/ts-evac/internal/health"
	"github.com/technosupport/ts-evac/internal/metrics"
	"github.com/technosupport/ts-evac/internal/routing"
	"github.com/technosupport/ts-evac/internal/settings"
)

// Narrow views of the collaborators, so the cycle tests run against
// fakes instead of live cameras and detectors.
type (
	FrameAcquirer interface {
		Acquire(ctx context.Context, streamURL, floorID, cameraID, outDir string) (string, error)
	}
	FramePlacer interface {
		Place(tmpPath, floorID, cameraID string, now time.Time) (rel, abs string, err error)
	}
	HazardFuser interface {
		Fuse(ctx context.Context, req ai.Request, cloudEnabled bool) ai.FusionResult
	}
	Dispatcher interface {
		Dispatch(ctx context.Context, env dispatch.Envelope) dispatch.Outcome
	}
	FloorStore interface {
		List(ctx context.Context) ([]*floors.Floor, error)
		Upsert(ctx context.Context, f *floors.Floor) error
	}
	ImageStore interface {
		Insert(ctx context.Context, rec *data.ImageRecord) error
	}
	RouteStore interface {
		Insert(ctx context.Context, doc *data.RouteDocument) error
		UpdateTiming(ctx context.Context, id string, timing data.CycleTiming) error
	}
	SettingsReader interface {
		Get(ctx context.Context) settings.Settings
	}
	EmergencyNotifier interface {
		Emergency(floorID, hazardLevel string)
	}
)

// Cycle runs the capture-fuse-route-dispatch sequence for the building.
// One cycle processes every active floor sequentially; per-floor failures
// are isolated so one bad floor never starves the rest.
type Cycle struct {
	Cfg      config.Config
	Weights  *config.WeightStore
	Floors   FloorStore
	Images   ImageStore
	Routes   RouteStore
	Settings SettingsReader

	Acquirer FrameAcquirer
	Placer   FramePlacer
	Store    capture.ObjectStore // optional; nil disables frame uploads
	Fuser    HazardFuser

	Health   *health.Tracker
	Dispatch Dispatcher
	Alerts   EmergencyNotifier // optional
}

// Run executes one full cycle across all active floors.
func (c *Cycle) Run(ctx context.Context) {
	started := time.Now()

	s := c.Settings.Get(ctx)
	all, err := c.Floors.List(ctx)
	if err != nil {
		log.Printf("[Pipeline] floor list failed, cycle aborted: %v", err)
		return
	}

	for _, f := range all {
		if !f.IsActive() {
			continue
		}
		if err := c.RunFloor(ctx, f, s); err != nil {
			metrics.FloorCycles.WithLabelValues(f.ID, "error").Inc()
			log.Printf("[Pipeline] floor %s cycle failed: %v", f.ID, err)
			continue
		}
		metrics.FloorCycles.WithLabelValues(f.ID, "ok").Inc()
	}
	metrics.CycleDuration.Observe(time.Since(started).Seconds())
}

// RunFloor processes one floor: capture a frame per active camera, fuse
// hazard estimates onto monitored edges, recompute evacuation routes,
// persist the route document, then dispatch it.
func (c *Cycle) RunFloor(ctx context.Context, f *floors.Floor, s settings.Settings) error {
	var timing data.CycleTiming

	// Stale hazards from the previous cycle must never leak into this
	// one: a camera that fails now contributes nothing, not old smoke.
	f.ResetHazards()

	captureStarted := time.Now()
	peaks, fusion, camerasChanged := c.observe(ctx, f, s)
	timing.FusionMs = fusion.Milliseconds()
	timing.CaptureMs = (time.Since(captureStarted) - fusion).Milliseconds()

	for edgeID, values := range peaks {
		f.SetEdgeHazard(edgeID, values)
	}

	// A floor with no registered screens or no exits has no routes to
	// compute; camera observations still count, but nothing is persisted
	// or pushed.
	starts := f.StartNodes()
	if len(starts) == 0 || len(f.ExitPoints) == 0 {
		log.Printf("[Pipeline] floor %s has no start or exit points, routing skipped", f.ID)
		if camerasChanged {
			if err := c.Floors.Upsert(ctx, f); err != nil {
				log.Printf("[Pipeline] floor %s camera state persist failed: %v", f.ID, err)
			}
		}
		return nil
	}

	routingStarted := time.Now()
	routes, _ := routing.ComputeRoutes(
		routing.Graph{Nodes: f.Nodes, Edges: f.Edges, Image: f.MapImage},
		starts, f.ExitPoints, c.Weights.Get(),
	)
	timing.RoutingMs = time.Since(routingStarted).Milliseconds()
	metrics.RoutesComputed.Add(float64(len(routes)))

	// Emergency means an assigned route crosses a threshold-exceeding
	// edge. A fire the routes detour around raises edge weights and the
	// hazard level, not the emergency flag.
	overall := routing.HazardSafe
	emergency := false
	for _, r := range routes {
		overall = routing.MaxHazard(overall, r.HazardLevel)
		if r.ExceedsThresholds {
			emergency = true
		}
	}
	if emergency {
		metrics.EmergenciesDetected.Inc()
		if c.Alerts != nil {
			c.Alerts.Emergency(f.ID, string(overall))
		}
	}

	persistStarted := time.Now()
	doc := &data.RouteDocument{
		FloorID:            f.ID,
		ComputedAt:         time.Now().UTC(),
		Routes:             routes,
		Emergency:          emergency,
		OverallHazardLevel: overall,
		Timing:             timing,
	}
	if err := c.Routes.Insert(ctx, doc); err != nil {
		return err
	}
	timing.PersistMs = time.Since(persistStarted).Milliseconds()

	dispatchStarted := time.Now()
	out := c.Dispatch.Dispatch(ctx, dispatch.Envelope{
		FloorID:            f.ID,
		FloorName:          f.Name,
		Routes:             routes,
		Emergency:          emergency,
		OverallHazardLevel: overall,
		Timestamp:          doc.ComputedAt,
	})
	timing.DispatchMs = (time.Since(dispatchStarted) - out.RadioTime).Milliseconds()
	if out.RadioInvoked {
		ok := out.RadioErr == nil
		timing.RadioMs = out.RadioTime.Milliseconds()
		timing.RadioOK = &ok
		metrics.RecordRadio(ok, out.RadioTime.Seconds())
	}

	if err := c.Routes.UpdateTiming(ctx, doc.ID, timing); err != nil {
		log.Printf("[Pipeline] timing update failed for %s: %v", doc.ID, err)
	}

	// Camera accounting (failure counters, auto-disables) survives the
	// cycle only if written back.
	if camerasChanged {
		if err := c.Floors.Upsert(ctx, f); err != nil {
			log.Printf("[Pipeline] floor %s camera state persist failed: %v", f.ID, err)
		}
	}
	return nil
}

// observe captures one frame per active camera and fuses the detector
// estimates. It returns the per-edge hazard peaks, the total time spent
// waiting on detectors, and whether any camera state changed.
func (c *Cycle) observe(ctx context.Context, f *floors.Floor, s settings.Settings) (map[string]floors.HazardValues, time.Duration, bool) {
	peaks := make(map[string]floors.HazardValues)
	var fusion time.Duration
	changed := false

	incoming := filepath.Join(c.Cfg.LocalStorageDir, "incoming")
	cloudEnabled := s.CloudProcessing.Enabled && c.Store != nil

	for i := range f.Cameras {
		cam := &f.Cameras[i]
		if cam.Status != floors.CameraActive && cam.Status != "" {
			continue
		}

		now := time.Now().UTC()
		streamURL := c.Cfg.StreamURL(cam.StreamURL, cam.ID)

		tmp, err := c.Acquirer.Acquire(ctx, streamURL, f.ID, cam.ID, incoming)
		if err != nil {
			metrics.RecordCapture(false)
			if c.Health.RecordFailure(cam, err) {
				metrics.CamerasDisabled.Inc()
			}
			changed = true
			log.Printf("[Pipeline] capture failed for camera %s: %v", cam.ID, err)
			continue
		}

		rel, abs, err := c.Placer.Place(tmp, f.ID, cam.ID, now)
		if err != nil {
			metrics.RecordCapture(false)
			if c.Health.RecordFailure(cam, err) {
				metrics.CamerasDisabled.Inc()
			}
			changed = true
			log.Printf("[Pipeline] frame placement failed for camera %s: %v", cam.ID, err)
			continue
		}
		metrics.RecordCapture(true)
		if cam.FailureCount > 0 {
			changed = true
		}
		c.Health.RecordSuccess(cam)

		rec := &data.ImageRecord{
			FloorID:    f.ID,
			CameraID:   cam.ID,
			EdgeID:     cam.EdgeID,
			LocalPath:  rel,
			CapturedAt: now,
		}

		if cloudEnabled {
			up, err := c.Store.Upload(ctx, abs, capture.FolderKey(f.ID, cam.ID, now))
			if err != nil {
				// Detector fusion proceeds local-only; the upload is
				// not a camera fault.
				log.Printf("[Pipeline] frame upload failed for camera %s: %v", cam.ID, err)
			} else {
				rec.CloudURL = up.URL
				rec.Width = up.Width
				rec.Height = up.Height
			}
		}

		fuseStarted := time.Now()
		res := c.Fuser.Fuse(ctx, ai.Request{
			ImageURL:  rec.CloudURL,
			LocalPath: abs,
			CameraID:  cam.ID,
			EdgeID:    cam.EdgeID,
		}, s.CloudProcessing.Enabled)
		fusion += time.Since(fuseStarted)

		// The record is processed once fusion has run, even when both
		// detectors failed: the all-zero snapshot is the observation.
		rec.Fused = res.Values
		rec.Processed = true
		if err := c.Images.Insert(ctx, rec); err != nil {
			log.Printf("[Pipeline] image record insert failed for camera %s: %v", cam.ID, err)
		}

		if cam.EdgeID != "" {
			peaks[cam.EdgeID] = maxHazards(peaks[cam.EdgeID], res.Values)
		}
	}
	return peaks, fusion, changed
}

// maxHazards merges estimates from multiple cameras watching the same
// edge; routing must see the worst observation.
func maxHazards(a, b floors.HazardValues) floors.HazardValues {
	if b.People > a.People {
		a.People = b.People
	}
	if b.Fire > a.Fire {
		a.Fire = b.Fire
	}
	if b.Smoke > a.Smoke {
		a.Smoke = b.Smoke
	}
	return a
}
