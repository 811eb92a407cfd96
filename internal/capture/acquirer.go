package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// AcquireError wraps any transport or decoder failure while fetching a
// frame. The health tracker counts these toward auto-disable.
type AcquireError struct {
	CameraID string
	Err      error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("frame acquire failed for camera %s: %v", e.CameraID, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Acquirer fetches exactly one still JPEG per call from a stream snapshot
// URL. The decoder behind the URL is a black box; no retries here.
type Acquirer struct {
	Client *http.Client
}

func NewAcquirer(timeout time.Duration) *Acquirer {
	return &Acquirer{Client: &http.Client{Timeout: timeout}}
}

// Acquire writes one frame to outDir/{nowMillis}-{floorId}-{cameraId}.jpg,
// creating outDir as needed and overwriting any existing file.
func (a *Acquirer) Acquire(ctx context.Context, streamURL, floorID, cameraID, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &AcquireError{CameraID: cameraID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", &AcquireError{CameraID: cameraID, Err: err}
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", &AcquireError{CameraID: cameraID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AcquireError{CameraID: cameraID, Err: fmt.Errorf("stream returned %d", resp.StatusCode)}
	}

	name := fmt.Sprintf("%d-%s-%s.jpg", time.Now().UnixMilli(), floorID, cameraID)
	dest := filepath.Join(outDir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", &AcquireError{CameraID: cameraID, Err: err}
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", &AcquireError{CameraID: cameraID, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &AcquireError{CameraID: cameraID, Err: err}
	}
	return dest, nil
}
