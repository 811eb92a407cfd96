package routing

import (
	"container/heap"
	"log"
	"time"

	"github.com/technosupport/ts-evac/internal/config"
	"github.com/technosupport/ts-evac/internal/floors"
)

// Graph is the per-cycle view handed to the engine: nodes, edges carrying
// their current hazard snapshot, and the map scale.
type Graph struct {
	Nodes []floors.Node
	Edges []floors.Edge
	Image *floors.MapImage
}

// EdgeHazard is the per-edge detail persisted with each route.
type EdgeHazard struct {
	EdgeID           string  `json:"edgeId"`
	People           float64 `json:"people"`
	Fire             float64 `json:"fire"`
	Smoke            float64 `json:"smoke"`
	FireRatio        float64 `json:"fireRatio"`
	SmokeRatio       float64 `json:"smokeRatio"`
	ExceedsThreshold bool    `json:"exceedsThreshold"`
}

// Route is one screen's computed evacuation path.
type Route struct {
	StartNode         string       `json:"startNode"`
	ExitNode          string       `json:"exitNode"`
	Path              []string     `json:"path"`
	Edges             []string     `json:"edges"`
	Distance          float64      `json:"distance"`
	DistanceMeters    float64      `json:"distanceMeters"`
	HazardLevel       HazardLevel  `json:"hazardLevel"`
	ExceedsThresholds bool         `json:"exceedsThresholds"`
	EdgeHazards       []EdgeHazard `json:"edgeHazards"`
}

// Timing is the engine's side channel for the cycle record.
type Timing struct {
	Duration      time.Duration `json:"durationMs"`
	StartsRouted  int           `json:"startsRouted"`
	StartsSkipped int           `json:"startsSkipped"`
}

type arc struct {
	to     string
	edgeID string
	cost   EdgeCost
}

type pred struct {
	prev   string
	edgeID string
}

// ComputeRoutes runs hazard-weighted Dijkstra from every start against the
// exit set. Starts with no reachable exit (or unknown ids) are skipped and
// logged; the remaining starts still produce routes.
func ComputeRoutes(g Graph, starts, exits []string, w config.Weights) ([]Route, Timing) {
	began := time.Now()
	timing := Timing{}

	if len(starts) == 0 || len(exits) == 0 {
		log.Printf("[Routing] nothing to compute: %d starts, %d exits", len(starts), len(exits))
		timing.Duration = time.Since(began)
		return []Route{}, timing
	}

	nodeByID := make(map[string]floors.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeByID[n.ID] = n
	}
	edgeByID := make(map[string]floors.Edge, len(g.Edges))
	lengthByID := make(map[string]float64, len(g.Edges))

	// Undirected adjacency; each edge contributes both directions with the
	// same evaluated cost.
	adj := make(map[string][]arc, len(g.Nodes))
	for _, e := range g.Edges {
		from, okF := nodeByID[e.From]
		to, okT := nodeByID[e.To]
		if !okF || !okT {
			log.Printf("[Routing] edge %s references unknown node, skipping", e.ID)
			continue
		}
		meters := DistanceMeters(from, to, g.Image)
		edgeByID[e.ID] = e
		lengthByID[e.ID] = meters
		cost := CostEdge(e, meters, w)
		adj[e.From] = append(adj[e.From], arc{to: e.To, edgeID: e.ID, cost: cost})
		adj[e.To] = append(adj[e.To], arc{to: e.From, edgeID: e.ID, cost: cost})
	}

	exitSet := make(map[string]bool, len(exits))
	for _, id := range exits {
		exitSet[id] = true
	}

	routes := make([]Route, 0, len(starts))
	for _, start := range starts {
		if _, ok := nodeByID[start]; !ok {
			log.Printf("[Routing] unknown start node %s, skipping", start)
			timing.StartsSkipped++
			continue
		}
		r, ok := shortestToExit(start, exitSet, adj, edgeByID, lengthByID, w)
		if !ok {
			log.Printf("[Routing] no exit reachable from %s, skipping", start)
			timing.StartsSkipped++
			continue
		}
		routes = append(routes, r)
		timing.StartsRouted++
	}

	timing.Duration = time.Since(began)
	return routes, timing
}

func shortestToExit(start string, exits map[string]bool, adj map[string][]arc, edgeByID map[string]floors.Edge, lengthByID map[string]float64, w config.Weights) (Route, bool) {
	dist := map[string]float64{start: 0}
	preds := map[string]pred{}
	done := map[string]bool{}

	pq := &nodeQueue{{id: start, dist: 0}}
	heap.Init(pq)

	winner := ""
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queued)
		if done[item.id] {
			continue
		}
		done[item.id] = true

		// First settled exit is the nearest one.
		if exits[item.id] {
			winner = item.id
			break
		}

		for _, a := range adj[item.id] {
			if done[a.to] {
				continue
			}
			alt := dist[item.id] + a.cost.Weight
			if cur, seen := dist[a.to]; !seen || alt < cur {
				dist[a.to] = alt
				preds[a.to] = pred{prev: item.id, edgeID: a.edgeID}
				heap.Push(pq, &queued{id: a.to, dist: alt})
			}
		}
	}

	if winner == "" {
		return Route{}, false
	}

	// Walk predecessors back to the start, then reverse.
	path := []string{winner}
	edgeIDs := []string{}
	for at := winner; at != start; {
		p := preds[at]
		path = append(path, p.prev)
		edgeIDs = append(edgeIDs, p.edgeID)
		at = p.prev
	}
	reverse(path)
	reverse(edgeIDs)

	return summarize(start, winner, path, edgeIDs, dist[winner], edgeByID, lengthByID, w), true
}

func summarize(start, exit string, path, edgeIDs []string, total float64, edgeByID map[string]floors.Edge, lengthByID map[string]float64, w config.Weights) Route {
	r := Route{
		StartNode:   start,
		ExitNode:    exit,
		Path:        path,
		Edges:       edgeIDs,
		Distance:    total,
		HazardLevel: HazardSafe,
		EdgeHazards: make([]EdgeHazard, 0, len(edgeIDs)),
	}

	maxRatio := 0.0
	for _, id := range edgeIDs {
		e := edgeByID[id]
		fireRatio := safeRatio(e.Current.Fire, e.Thresholds.Fire)
		smokeRatio := safeRatio(e.Current.Smoke, e.Thresholds.Smoke)
		exceeds := e.Current.Fire > e.Thresholds.Fire || e.Current.Smoke > e.Thresholds.Smoke

		if fireRatio > maxRatio {
			maxRatio = fireRatio
		}
		if smokeRatio > maxRatio {
			maxRatio = smokeRatio
		}
		if exceeds {
			r.ExceedsThresholds = true
		}
		r.DistanceMeters += lengthByID[id]

		r.EdgeHazards = append(r.EdgeHazards, EdgeHazard{
			EdgeID:           id,
			People:           e.Current.People,
			Fire:             e.Current.Fire,
			Smoke:            e.Current.Smoke,
			FireRatio:        fireRatio,
			SmokeRatio:       smokeRatio,
			ExceedsThreshold: exceeds,
		})
	}

	r.HazardLevel = ClassifyHazard(maxRatio, w.HazardModerateRatio, w.HazardCriticalRatio)
	return r
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

type queued struct {
	id   string
	dist float64
}

type nodeQueue []*queued

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(*queued)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
