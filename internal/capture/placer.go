package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Placer moves captured frames into date-partitioned permanent storage.
type Placer struct {
	BaseDir string
}

// Place moves (not copies) the temporary file under
// BASE/YYYY/MM/DD/{floorId}/{cameraId}/{basename}, dating by UTC wall
// clock at placement time. Returns the portable relative path for
// persistence and the absolute path for further I/O.
func (p *Placer) Place(tmpPath, floorID, cameraID string, now time.Time) (rel string, abs string, err error) {
	now = now.UTC()
	rel = filepath.Join(
		now.Format("2006"), now.Format("01"), now.Format("02"),
		floorID, cameraID, filepath.Base(tmpPath),
	)
	abs = filepath.Join(p.BaseDir, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", "", fmt.Errorf("placement dir: %w", err)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		// Rename fails across filesystems (tmpfs capture dir); fall back
		// to copy+remove.
		if err := copyFile(tmpPath, abs); err != nil {
			return "", "", fmt.Errorf("place frame: %w", err)
		}
		os.Remove(tmpPath)
	}
	return rel, abs, nil
}

// FolderKey is the logical object-store folder for a placement.
func FolderKey(floorID, cameraID string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("evacuation_frames/%s/%s/%s/%s/%s",
		now.Format("2006"), now.Format("01"), now.Format("02"), floorID, cameraID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
