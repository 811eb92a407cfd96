package ai

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-evac/internal/floors"
	"github.com/technosupport/ts-evac/internal/metrics"
)

// Fuser runs the local and cloud detectors concurrently and fuses their
// estimates with cloud precedence.
type Fuser struct {
	Local Detector
	Cloud Detector
}

// FusionResult carries the fused snapshot plus which detectors answered,
// for the image record and the cycle log.
type FusionResult struct {
	Values     floors.HazardValues
	LocalOK    bool
	CloudOK    bool
	CloudTried bool
}

// Fuse invokes both detectors concurrently (each bounded by its own
// timeout inside Detect). The cloud call is skipped when cloud processing
// is disabled or no public URL exists. Field-wise fusion rule:
// cloud value, else local value, else zero — a camera with both detectors
// down reads as "no hazard observed".
func (f *Fuser) Fuse(ctx context.Context, req Request, cloudEnabled bool) FusionResult {
	var (
		wg           sync.WaitGroup
		local, cloud *Response
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		started := time.Now()
		res, err := f.Local.Detect(ctx, Request{LocalPath: req.LocalPath, CameraID: req.CameraID, EdgeID: req.EdgeID})
		metrics.RecordAILatency("local", float64(time.Since(started).Milliseconds()))
		if err != nil {
			metrics.AIFailures.WithLabelValues("local").Inc()
			log.Printf("[AI] local detector failed for camera %s: %v", req.CameraID, err)
			return
		}
		local = res
	}()

	cloudTried := cloudEnabled && req.ImageURL != "" && f.Cloud != nil
	if cloudTried {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			res, err := f.Cloud.Detect(ctx, Request{ImageURL: req.ImageURL, CameraID: req.CameraID, EdgeID: req.EdgeID})
			metrics.RecordAILatency("cloud", float64(time.Since(started).Milliseconds()))
			if err != nil {
				metrics.AIFailures.WithLabelValues("cloud").Inc()
				log.Printf("[AI] cloud detector failed for camera %s: %v", req.CameraID, err)
				return
			}
			cloud = res
		}()
	}
	wg.Wait()

	out := FusionResult{
		LocalOK:    local != nil,
		CloudOK:    cloud != nil,
		CloudTried: cloudTried,
	}
	out.Values = floors.HazardValues{
		People: fuseField(field(cloud, func(r *Response) *float64 { return r.PeopleCount }),
			field(local, func(r *Response) *float64 { return r.PeopleCount })),
		Fire: fuseField(field(cloud, func(r *Response) *float64 { return r.FireProb }),
			field(local, func(r *Response) *float64 { return r.FireProb })),
		Smoke: fuseField(field(cloud, func(r *Response) *float64 { return r.SmokeProb }),
			field(local, func(r *Response) *float64 { return r.SmokeProb })),
	}
	return out
}

func field(r *Response, pick func(*Response) *float64) *float64 {
	if r == nil {
		return nil
	}
	return pick(r)
}

func fuseField(cloud, local *float64) float64 {
	if cloud != nil {
		return *cloud
	}
	if local != nil {
		return *local
	}
	return 0
}
