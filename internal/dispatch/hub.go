package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/technosupport/ts-evac/internal/floors"
	"github.com/technosupport/ts-evac/internal/metrics"
)

// Event names on the push channel. RouteUpdate is the legacy global
// broadcast kept for old display firmware.
//
// Deprecated: new clients should subscribe per floor and handle
// EventFloorRoutes only.
const (
	EventFloorRoutes  = "floor-routes"
	EventRouteUpdate  = "route_update"
	EventRegConfirmed = "registration_confirmed"
	EventRegError     = "registration_error"
)

const registrationTimeout = 10 * time.Second

// RoomName is the per-floor room a display joins.
func RoomName(floorID string) string {
	return "floor:" + floorID
}

// FloorResolver validates registration floor ids against the floor store.
type FloorResolver interface {
	Get(ctx context.Context, id string) (*floors.Floor, error)
}

type message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type registration struct {
	FloorID string `json:"floorId"`
}

type subscription struct {
	floorID   string
	floorName string
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; gorilla allows one writer
}

func (c *client) send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(message{Event: event, Data: payload})
}

// Hub owns the display-screen connections and the presence registry the
// dispatch selector consults. The hub is the sole writer of presence
// state; the pipeline only takes snapshots.
type Hub struct {
	resolver FloorResolver
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]subscription
}

func NewHub(resolver FloorResolver) *Hub {
	return &Hub{
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]subscription),
	}
}

// HandleWS upgrades a display connection. The first client message must
// be a registration `{floorId}`; unknown floors are rejected and the
// subscriber disconnected.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Dispatch] upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(registrationTimeout))
	var reg registration
	if err := conn.ReadJSON(&reg); err != nil {
		c.send(EventRegError, map[string]string{"error": "registration expected"})
		return
	}

	floor, err := h.resolver.Get(r.Context(), reg.FloorID)
	if err != nil {
		c.send(EventRegError, map[string]string{"error": fmt.Sprintf("unknown floor %q", reg.FloorID)})
		return
	}

	h.mu.Lock()
	h.clients[c] = subscription{floorID: floor.ID, floorName: floor.Name}
	metrics.WSSubscribers.Set(float64(len(h.clients)))
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		metrics.WSSubscribers.Set(float64(len(h.clients)))
		h.mu.Unlock()
	}()

	c.send(EventRegConfirmed, map[string]any{
		"floorId":     floor.ID,
		"floorName":   floor.Name,
		"startPoints": floor.StartNodes(),
		"exitPoints":  floor.ExitPoints,
		"ts":          time.Now().UnixMilli(),
	})
	log.Printf("[Dispatch] screen registered on %s", RoomName(floor.ID))

	// Read loop exists to observe disconnects; displays send nothing
	// after registration.
	conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Size returns the number of connected subscribers.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FloorIDs is the deduplicated presence snapshot.
func (h *Hub) FloorIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool, len(h.clients))
	out := make([]string, 0, len(h.clients))
	for _, sub := range h.clients {
		if !seen[sub.floorID] {
			seen[sub.floorID] = true
			out = append(out, sub.floorID)
		}
	}
	return out
}

// HasSubscribers reports whether at least one display is registered for
// the floor at this instant.
func (h *Hub) HasSubscribers(floorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.clients {
		if sub.floorID == floorID {
			return true
		}
	}
	return false
}

// EmitTo pushes an event to every subscriber of a room.
func (h *Hub) EmitTo(room, event string, payload any) {
	h.mu.RLock()
	targets := make([]*client, 0)
	for c, sub := range h.clients {
		if RoomName(sub.floorID) == room {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(event, payload); err != nil {
			log.Printf("[Dispatch] push to %s failed: %v", room, err)
		}
	}
}

// Emit pushes an event to every subscriber regardless of floor.
func (h *Hub) Emit(event string, payload any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(event, payload); err != nil {
			log.Printf("[Dispatch] broadcast failed: %v", err)
		}
	}
}

// CloseAll disconnects every subscriber; used on graceful shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[*client]subscription)
}
