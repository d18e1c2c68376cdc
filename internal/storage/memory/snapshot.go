package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c3i/globe/pkg/core"
)

// snapshotFile is the on-disk layout of a persisted collection.
type snapshotFile struct {
	Version   int             `json:"version"`
	SavedAt   time.Time       `json:"savedAt"`
	Waypoints []core.Waypoint `json:"waypoints"`
}

const snapshotVersion = 1

// loadSnapshot reads a snapshot. A missing file is an empty collection.
// Gzip is detected from the ".gz" suffix.
func loadSnapshot(path string) ([]core.Waypoint, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var snap snapshotFile
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return snap.Waypoints, nil
}

// writeSnapshot writes atomically via a temp file in the same directory.
func writeSnapshot(path string, compress bool, wps []core.Waypoint) error {
	if compress && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".waypoints-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		w = gz
	}

	snap := snapshotFile{Version: snapshotVersion, SavedAt: time.Now().UTC(), Waypoints: wps}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
