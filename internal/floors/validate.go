package floors

import (
	"errors"
	"fmt"
)

var ErrInvalidFloor = errors.New("invalid floor")

// Validate checks the referential invariants of a single floor:
// edge endpoints resolve, camera edgeIds and screen nodeIds resolve,
// exitPoints is a subset of the node ids.
func Validate(f *Floor) error {
	nodeIDs := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: floor %s has a node without id", ErrInvalidFloor, f.ID)
		}
		if nodeIDs[n.ID] {
			return fmt.Errorf("%w: floor %s duplicate node %s", ErrInvalidFloor, f.ID, n.ID)
		}
		nodeIDs[n.ID] = true
	}

	edgeIDs := make(map[string]bool, len(f.Edges))
	for _, e := range f.Edges {
		if edgeIDs[e.ID] {
			return fmt.Errorf("%w: floor %s duplicate edge %s", ErrInvalidFloor, f.ID, e.ID)
		}
		edgeIDs[e.ID] = true
		if !nodeIDs[e.From] || !nodeIDs[e.To] {
			return fmt.Errorf("%w: floor %s edge %s references unknown node", ErrInvalidFloor, f.ID, e.ID)
		}
	}

	for _, c := range f.Cameras {
		if !edgeIDs[c.EdgeID] {
			return fmt.Errorf("%w: floor %s camera %s references unknown edge %s", ErrInvalidFloor, f.ID, c.ID, c.EdgeID)
		}
	}
	for _, s := range f.Screens {
		if !nodeIDs[s.NodeID] {
			return fmt.Errorf("%w: floor %s screen %s references unknown node %s", ErrInvalidFloor, f.ID, s.ID, s.NodeID)
		}
	}
	for _, ep := range f.ExitPoints {
		if !nodeIDs[ep] {
			return fmt.Errorf("%w: floor %s exit point %s is not a node", ErrInvalidFloor, f.ID, ep)
		}
	}
	return nil
}

// ValidateFleet enforces global id uniqueness across all floors.
// Routing assumes this invariant holds; it is checked at load time.
func ValidateFleet(fs []*Floor) error {
	seen := make(map[string]string) // id -> floor that owns it
	claim := func(id, floorID, kind string) error {
		if id == "" {
			return nil
		}
		if owner, ok := seen[id]; ok && owner != floorID {
			return fmt.Errorf("%w: %s id %s appears on floors %s and %s", ErrInvalidFloor, kind, id, owner, floorID)
		}
		seen[id] = floorID
		return nil
	}

	for _, f := range fs {
		if err := Validate(f); err != nil {
			return err
		}
		for _, n := range f.Nodes {
			if err := claim(n.ID, f.ID, "node"); err != nil {
				return err
			}
		}
		for _, e := range f.Edges {
			if err := claim(e.ID, f.ID, "edge"); err != nil {
				return err
			}
		}
		for _, c := range f.Cameras {
			if err := claim(c.ID, f.ID, "camera"); err != nil {
				return err
			}
		}
		for _, s := range f.Screens {
			if err := claim(s.ID, f.ID, "screen"); err != nil {
				return err
			}
		}
	}
	return nil
}
