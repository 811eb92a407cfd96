package alerts

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPublisher(pub func(subject string, data []byte) error) *Publisher {
	cache, _ := lru.New[string, time.Time](dedupKeys)
	return &Publisher{subjectPub: pub, maxRetries: 2, dedup: cache}
}

func TestEmergency_DedupWithinWindow(t *testing.T) {
	var got []string
	p := stubPublisher(func(subject string, data []byte) error {
		got = append(got, subject)
		return nil
	})

	p.Emergency("f1", "critical")
	p.Emergency("f1", "critical") // suppressed
	p.Emergency("f1", "moderate") // different level, published
	p.Emergency("f2", "critical") // different floor, published

	assert.Equal(t, []string{SubjectEmergency, SubjectEmergency, SubjectEmergency}, got)
}

func TestCameraDisabled_Payload(t *testing.T) {
	var body []byte
	p := stubPublisher(func(subject string, data []byte) error {
		assert.Equal(t, SubjectCameraDisabled, subject)
		body = data
		return nil
	})

	p.CameraDisabled("c1", "Auto-disabled after 3 consecutive failures: timeout")

	var evt CameraDisabledEvent
	require.NoError(t, json.Unmarshal(body, &evt))
	assert.Equal(t, "c1", evt.CameraID)
	assert.Contains(t, evt.Reason, "3 consecutive failures")
	assert.False(t, evt.DisabledAt.IsZero())
}

func TestPublish_RetriesThenFails(t *testing.T) {
	calls := 0
	p := stubPublisher(func(string, []byte) error {
		calls++
		return errors.New("no responders")
	})

	err := p.publish(SubjectEmergency, EmergencyEvent{FloorID: "f1"})
	assert.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt plus two retries
}

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	p.Emergency("f1", "critical")
	p.CameraDisabled("c1", "reason")
}
