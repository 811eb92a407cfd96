package radio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/technosupport/ts-evac/internal/config"
)

const killGrace = 2 * time.Second

// ErrBusy is returned when a transmission is already on the air. The
// USRP is a single shared device; overlapping transmissions corrupt
// both, so callers skip rather than queue.
var ErrBusy = errors.New("radio: transmission in progress")

// ErrTimeout is returned when the modulator outlives its deadline and
// has to be killed.
var ErrTimeout = errors.New("radio: modulator timed out")

// Result captures one modulator run.
type Result struct {
	OK       bool
	Output   string
	Duration time.Duration
}

// Transmitter frames payloads and drives the external GNU Radio
// modulator script over the USRP hardware.
type Transmitter struct {
	Framer  Framer
	Script  string
	Timeout time.Duration

	// Environment overrides for the modulator process.
	UHDImagesDir string
	LDPreload    string

	mu sync.Mutex // device guard, TryLock on entry

	last   Result
	lastMu sync.Mutex
}

func NewTransmitter(cfg config.Config) *Transmitter {
	return &Transmitter{
		Framer: Framer{
			Path:     cfg.USRPDataFile,
			PadLead:  cfg.USRPPadLead,
			PadTrail: cfg.USRPPadTrail,
		},
		Script:       cfg.USRPScriptPath,
		Timeout:      cfg.USRPTimeout,
		UHDImagesDir: cfg.USRPUHDImagesDir,
		LDPreload:    cfg.USRPLDPreload,
	}
}

// Transmit frames the payload and runs the modulator to completion. It
// satisfies the dispatch selector's fallback interface.
func (t *Transmitter) Transmit(ctx context.Context, payload any) error {
	if !t.mu.TryLock() {
		return ErrBusy
	}
	defer t.mu.Unlock()

	if err := t.Framer.Frame(payload); err != nil {
		return err
	}

	res, err := t.run(ctx)
	t.lastMu.Lock()
	t.last = res
	t.lastMu.Unlock()
	return err
}

// Last returns the most recent transmission result.
func (t *Transmitter) Last() Result {
	t.lastMu.Lock()
	defer t.lastMu.Unlock()
	return t.last
}

func (t *Transmitter) run(ctx context.Context) (Result, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Script, t.Framer.Path)
	cmd.Env = t.environ()
	// On timeout ask the script to stop cleanly so the device driver
	// releases the USRP; escalate to SIGKILL after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	started := time.Now()
	log.Printf("[Radio] transmitting via %s", t.Script)
	err := cmd.Run()
	res := Result{
		OK:       err == nil,
		Output:   out.String(),
		Duration: time.Since(started),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return res, fmt.Errorf("radio: modulator failed: %w", err)
	}
	log.Printf("[Radio] transmission complete in %s", res.Duration.Round(time.Millisecond))
	return res, nil
}

// environ builds the modulator environment. The host process may carry
// LD_LIBRARY_PATH and PYTHONPATH pointing at bundled runtimes that
// break the system GNU Radio install, so those are dropped.
func (t *Transmitter) environ() []string {
	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		switch key {
		case "LD_LIBRARY_PATH", "PYTHONPATH", "LD_PRELOAD", "UHD_IMAGES_DIR":
			continue
		}
		env = append(env, kv)
	}
	if t.UHDImagesDir != "" {
		env = append(env, "UHD_IMAGES_DIR="+t.UHDImagesDir)
	}
	if t.LDPreload != "" {
		env = append(env, "LD_PRELOAD="+t.LDPreload)
	}
	return env
}
