package radio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Framer writes the transmit data file the modulator reads. The payload
// sits between two runs of '=' padding; the receiver locks onto the
// leading run and discards the trailing one, so the pad lengths must
// match the receiver build exactly.
type Framer struct {
	Path     string
	PadLead  int
	PadTrail int
}

// Frame serializes the payload and writes the padded data file,
// replacing any previous transmission atomically.
func (f Framer) Frame(payload any) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("frame payload: %w", err)
	}

	var b strings.Builder
	b.Grow(f.PadLead + f.PadTrail + len(body) + 3)
	b.WriteString(strings.Repeat("=", f.PadLead))
	b.WriteByte('\n')
	b.Write(body)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", f.PadTrail))
	b.WriteByte('\n')

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("frame dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tx-*")
	if err != nil {
		return fmt.Errorf("frame temp: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("frame write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("frame close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("frame rename: %w", err)
	}
	return nil
}
