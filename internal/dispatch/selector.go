package dispatch

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/technosupport/ts-evac/internal/routing"
)

// Envelope is the per-floor route payload pushed to displays, cached in
// redis, and framed onto the radio when no display is listening.
type Envelope struct {
	FloorID            string              `json:"floorId"`
	FloorName          string              `json:"floorName"`
	Routes             []routing.Route     `json:"routes"`
	Emergency          bool                `json:"emergency"`
	OverallHazardLevel routing.HazardLevel `json:"overallHazardLevel"`
	Timestamp          time.Time           `json:"timestamp"`
	TotalRoutes        int                 `json:"totalRoutes"`
}

// EnvelopeKey is the redis key holding the latest envelope for a floor.
func EnvelopeKey(floorID string) string {
	return "evac:envelope:" + floorID
}

// RadioTransmitter frames and transmits an envelope over the air.
type RadioTransmitter interface {
	Transmit(ctx context.Context, payload any) error
}

// Outcome records what the selector did with one envelope.
type Outcome struct {
	Subscribers  bool
	RadioInvoked bool
	RadioErr     error
	RadioTime    time.Duration
}

// Selector decides, per floor per cycle, between websocket push and the
// radio fallback. The decision is presence at the instant of dispatch:
// at least one registered display means push only, none means radio.
type Selector struct {
	Hub   *Hub
	Radio RadioTransmitter
	Cache *redis.Client // optional; nil disables envelope caching

	CacheTTL time.Duration
}

// Dispatch delivers one envelope. The targeted floor-routes event and
// the legacy global route_update broadcast always go out; the envelope
// is cached for late joiners; radio runs only with zero subscribers.
func (s *Selector) Dispatch(ctx context.Context, env Envelope) Outcome {
	env.TotalRoutes = len(env.Routes)
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	s.Hub.EmitTo(RoomName(env.FloorID), EventFloorRoutes, env)
	s.Hub.Emit(EventRouteUpdate, env)

	s.cache(ctx, env)

	out := Outcome{Subscribers: s.Hub.HasSubscribers(env.FloorID)}
	if out.Subscribers {
		return out
	}
	if s.Radio == nil {
		log.Printf("[Dispatch] floor %s has no subscribers and no radio configured", env.FloorID)
		return out
	}

	out.RadioInvoked = true
	started := time.Now()
	out.RadioErr = s.Radio.Transmit(ctx, env)
	out.RadioTime = time.Since(started)
	if out.RadioErr != nil {
		log.Printf("[Dispatch] radio fallback for floor %s failed: %v", env.FloorID, out.RadioErr)
	}
	return out
}

func (s *Selector) cache(ctx context.Context, env Envelope) {
	if s.Cache == nil {
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, EnvelopeKey(env.FloorID), body, s.CacheTTL).Err(); err != nil {
		log.Printf("[Dispatch] envelope cache write failed: %v", err)
	}
}

// CachedEnvelope returns the latest cached envelope for a floor, or nil
// when the cache is cold or disabled.
func (s *Selector) CachedEnvelope(ctx context.Context, floorID string) *Envelope {
	if s.Cache == nil {
		return nil
	}
	body, err := s.Cache.Get(ctx, EnvelopeKey(floorID)).Bytes()
	if err != nil {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	return &env
}
