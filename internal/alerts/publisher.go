package alerts

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nats-io/nats.go"
)

// Bus subjects consumed by the building management integration.
const (
	SubjectEmergency      = "evac.emergency"
	SubjectCameraDisabled = "evac.camera.disabled"
)

const (
	dedupKeys   = 512
	dedupWindow = 5 * time.Minute
)

// EmergencyEvent is published when a floor cycle first crosses into an
// emergency hazard level.
type EmergencyEvent struct {
	FloorID     string    `json:"floorId"`
	HazardLevel string    `json:"hazardLevel"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// CameraDisabledEvent is published when the health tracker auto-disables
// a camera.
type CameraDisabledEvent struct {
	CameraID   string    `json:"cameraId"`
	Reason     string    `json:"reason"`
	DisabledAt time.Time `json:"disabledAt"`
}

// Publisher pushes evacuation events onto the NATS bus. Emergencies are
// re-detected every cycle while the hazard persists, so they are
// deduplicated within a sliding window; a nil Publisher is a no-op so
// the pipeline runs unchanged without a configured bus.
type Publisher struct {
	subjectPub func(subject string, data []byte) error
	maxRetries int
	dedup      *lru.Cache[string, time.Time]
}

func NewPublisher(conn *nats.Conn, maxRetries int) *Publisher {
	cache, _ := lru.New[string, time.Time](dedupKeys)
	return &Publisher{
		subjectPub: conn.Publish,
		maxRetries: maxRetries,
		dedup:      cache,
	}
}

// Emergency publishes an emergency event unless the same floor and
// level were already announced within the dedup window.
func (p *Publisher) Emergency(floorID, hazardLevel string) {
	if p == nil {
		return
	}
	key := fmt.Sprintf("%s|%s", floorID, hazardLevel)
	if p.seen(key) {
		return
	}
	evt := EmergencyEvent{FloorID: floorID, HazardLevel: hazardLevel, DetectedAt: time.Now().UTC()}
	if err := p.publish(SubjectEmergency, evt); err != nil {
		log.Printf("[Alerts] emergency publish failed: %v", err)
	}
}

// CameraDisabled satisfies the health tracker's notifier hook.
func (p *Publisher) CameraDisabled(cameraID, reason string) {
	if p == nil {
		return
	}
	evt := CameraDisabledEvent{CameraID: cameraID, Reason: reason, DisabledAt: time.Now().UTC()}
	if err := p.publish(SubjectCameraDisabled, evt); err != nil {
		log.Printf("[Alerts] camera-disabled publish failed: %v", err)
	}
}

func (p *Publisher) seen(key string) bool {
	if addedAt, ok := p.dedup.Get(key); ok {
		if time.Since(addedAt) < dedupWindow {
			return true
		}
	}
	p.dedup.Add(key, time.Now())
	return false
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.subjectPub(subject, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
