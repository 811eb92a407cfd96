package radio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramer_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx_data.txt")
	f := Framer{Path: path, PadLead: 80, PadTrail: 33000}

	require.NoError(t, f.Frame(map[string]string{"floorId": "f1"}))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(body), "\n")

	// Leading pad, payload, trailing pad, each newline terminated.
	assert.Equal(t, strings.Repeat("=", 80), lines[0])
	assert.Equal(t, strings.Repeat("=", 33000), lines[len(lines)-2])
	assert.Equal(t, "", lines[len(lines)-1])

	payload := strings.Join(lines[1:len(lines)-2], "\n")
	assert.Contains(t, payload, `"floorId": "f1"`)
}

func TestFramer_ReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx_data.txt")
	f := Framer{Path: path, PadLead: 4, PadTrail: 4}

	require.NoError(t, f.Frame(map[string]string{"v": "first"}))
	require.NoError(t, f.Frame(map[string]string{"v": "second"}))

	body, _ := os.ReadFile(path)
	assert.Contains(t, string(body), "second")
	assert.NotContains(t, string(body), "first")
}

func TestTransmitter_Success(t *testing.T) {
	tx := &Transmitter{
		Framer:  Framer{Path: filepath.Join(t.TempDir(), "tx.txt"), PadLead: 2, PadTrail: 2},
		Script:  "/bin/true",
		Timeout: 5 * time.Second,
	}

	require.NoError(t, tx.Transmit(context.Background(), map[string]string{"floorId": "f1"}))
	assert.True(t, tx.Last().OK)
}

func TestTransmitter_ScriptFailure(t *testing.T) {
	tx := &Transmitter{
		Framer:  Framer{Path: filepath.Join(t.TempDir(), "tx.txt"), PadLead: 2, PadTrail: 2},
		Script:  "/bin/false",
		Timeout: 5 * time.Second,
	}

	err := tx.Transmit(context.Background(), map[string]string{"floorId": "f1"})
	assert.Error(t, err)
	assert.False(t, tx.Last().OK)
}

func TestTransmitter_Timeout(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	tx := &Transmitter{
		Framer:  Framer{Path: filepath.Join(dir, "tx.txt"), PadLead: 2, PadTrail: 2},
		Script:  script,
		Timeout: 200 * time.Millisecond,
	}

	err := tx.Transmit(context.Background(), map[string]string{"floorId": "f1"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTransmitter_BusySkips(t *testing.T) {
	tx := &Transmitter{
		Framer:  Framer{Path: filepath.Join(t.TempDir(), "tx.txt"), PadLead: 2, PadTrail: 2},
		Script:  "/bin/sleep",
		Timeout: 5 * time.Second,
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	assert.ErrorIs(t, tx.Transmit(context.Background(), nil), ErrBusy)
}

func TestTransmitter_Environ(t *testing.T) {
	t.Setenv("LD_LIBRARY_PATH", "/bundled/lib")
	t.Setenv("PYTHONPATH", "/bundled/py")

	tx := &Transmitter{UHDImagesDir: "/usr/share/uhd/images", LDPreload: "/usr/lib/libuhd.so"}
	env := tx.environ()

	joined := strings.Join(env, "\n")
	assert.NotContains(t, joined, "LD_LIBRARY_PATH=")
	assert.NotContains(t, joined, "PYTHONPATH=")
	assert.Contains(t, env, "UHD_IMAGES_DIR=/usr/share/uhd/images")
	assert.Contains(t, env, "LD_PRELOAD=/usr/lib/libuhd.so")
}
