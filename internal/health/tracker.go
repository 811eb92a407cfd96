package health

import (
	"fmt"
	"log"
	"time"

	"github.com/technosupport/ts-evac/internal/floors"
)

// DisabledBySystem marks status changes made by the tracker rather than
// an operator.
const DisabledBySystem = "system"

// Notifier receives auto-disable events (wired to the alerts publisher).
type Notifier interface {
	CameraDisabled(cameraID, reason string)
}

// Tracker applies consecutive-failure accounting to cameras. It mutates
// the in-memory camera; the cycle persists the floor afterwards.
type Tracker struct {
	Threshold int
	Notify    Notifier
	now       func() time.Time
}

func NewTracker(threshold int, notify Notifier) *Tracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Tracker{Threshold: threshold, Notify: notify, now: time.Now}
}

// RecordFailure bumps the consecutive-failure counter and auto-disables
// the camera at the threshold. The transition to error happens exactly
// once; further failures only bump the counter. Returns true on the
// transition.
func (t *Tracker) RecordFailure(cam *floors.Camera, cause error) bool {
	now := t.now()
	cam.FailureCount++
	cam.LastFailure = &now

	if cam.FailureCount < t.Threshold || cam.Status == floors.CameraError {
		return false
	}

	cam.Status = floors.CameraError
	cam.DisabledBy = DisabledBySystem
	cam.DisabledAt = &now
	cam.DisabledReason = fmt.Sprintf("Auto-disabled after %d consecutive failures: %v", cam.FailureCount, cause)

	log.Printf("[Health] camera %s auto-disabled: %v", cam.ID, cause)
	if t.Notify != nil {
		t.Notify.CameraDisabled(cam.ID, cam.DisabledReason)
	}
	return true
}

// RecordSuccess zeroes the failure counter and stamps lastSuccess. A
// camera in error stays in error: recovery needs an operator.
func (t *Tracker) RecordSuccess(cam *floors.Camera) {
	if cam.FailureCount > 0 {
		cam.FailureCount = 0
		now := t.now()
		cam.LastSuccess = &now
	}
}

// Reset is the operator action clearing an error status. The attribution
// fields record who cleared it.
func (t *Tracker) Reset(cam *floors.Camera, operator string) {
	cam.FailureCount = 0
	cam.Status = floors.CameraActive
	cam.DisabledReason = ""
	cam.DisabledAt = nil
	cam.DisabledBy = ""
	log.Printf("[Health] camera %s reset by %s", cam.ID, operator)
}
