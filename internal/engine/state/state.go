// Package state persists download metadata and segment scratch files under
// a process-wide scratch root. The metadata file records only the segment
// plan; per-segment progress is recovered by stat'ing the scratch files, so
// the on-disk length is the single source of truth.
package state

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/parafetch/parafetch/internal/utils"
)

// ErrStateMissing is returned by Load when the metadata file for an id does
// not exist or cannot be read.
var ErrStateMissing = errors.New("state missing")

// Meta is the persisted download record: one line per field in the .state
// file, in this order.
type Meta struct {
	URL       string
	OutputDir string
	Filename  string
	Segments  int
	TotalSize int64
}

// Root returns the scratch root directory, creating it on first use.
// TMPDIR (or the OS equivalent) selects its parent.
func Root() (string, error) {
	dir := filepath.Join(os.TempDir(), "parafetch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating scratch root: %w", err)
	}
	return dir, nil
}

// StateFile returns the metadata path for a download id.
func StateFile(id string) (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, id+".state"), nil
}

// SegmentFile returns the scratch path for segment ordinal i (1-based).
func SegmentFile(id string, i int) (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, fmt.Sprintf("%s.part%d", id, i)), nil
}

// Save writes the five-line metadata record for id.
func Save(id string, meta Meta) error {
	path, err := StateFile(id)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("%s\n%s\n%s\n%d\n%d",
		meta.URL, meta.OutputDir, meta.Filename, meta.Segments, meta.TotalSize)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	utils.Debug("state: saved %s (%d segments, %d bytes)", id, meta.Segments, meta.TotalSize)
	return nil
}

// Load reads the metadata record for id. Any failure to read or parse the
// file yields ErrStateMissing; a partially written record is treated the
// same as an absent one.
func Load(id string) (Meta, error) {
	path, err := StateFile(id)
	if err != nil {
		return Meta{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Meta{}, ErrStateMissing
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if scanner.Err() != nil || len(lines) < 5 {
		return Meta{}, ErrStateMissing
	}

	segments, err := strconv.Atoi(strings.TrimSpace(lines[3]))
	if err != nil || segments < 1 {
		return Meta{}, ErrStateMissing
	}
	totalSize, err := strconv.ParseInt(strings.TrimSpace(lines[4]), 10, 64)
	if err != nil || totalSize < 1 {
		return Meta{}, ErrStateMissing
	}

	return Meta{
		URL:       lines[0],
		OutputDir: lines[1],
		Filename:  lines[2],
		Segments:  segments,
		TotalSize: totalSize,
	}, nil
}

// Delete removes the metadata file for id.
func Delete(id string) error {
	path, err := StateFile(id)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// SegmentSize returns the current on-disk length of segment i, which is by
// construction the number of bytes delivered for it. A missing file is 0.
func SegmentSize(id string, i int) (int64, error) {
	path, err := SegmentFile(id, i)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// Merge concatenates segments 1..n in ascending order into
// <outputDir>/<id>.downloaded and returns that path. The caller renames the
// result to its final name. On any failure the partial output is removed.
func Merge(id, outputDir string, n int) (string, error) {
	finalPath := filepath.Join(outputDir, id+".downloaded")

	out, err := os.Create(finalPath)
	if err != nil {
		return "", fmt.Errorf("creating merge target: %w", err)
	}

	for i := 1; i <= n; i++ {
		path, err := SegmentFile(id, i)
		if err == nil {
			var in *os.File
			in, err = os.Open(path)
			if err == nil {
				_, err = io.Copy(out, in)
				in.Close()
			}
		}
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return "", fmt.Errorf("merging segment %d: %w", i, err)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return "", fmt.Errorf("closing merge target: %w", err)
	}
	return finalPath, nil
}

// Cleanup deletes every segment file and the metadata record for id.
func Cleanup(id string, n int) {
	for i := 1; i <= n; i++ {
		if path, err := SegmentFile(id, i); err == nil {
			os.Remove(path)
		}
	}
	if path, err := StateFile(id); err == nil {
		os.Remove(path)
	}
	if path, err := lockFile(id); err == nil {
		os.Remove(path)
	}
}

func lockFile(id string) (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, id+".lock"), nil
}

// Lock acquires the advisory per-download lock that enforces single engine
// ownership of an id. Returns the held lock, or an error when another
// engine instance already owns the download.
func Lock(id string) (*flock.Flock, error) {
	path, err := lockFile(id)
	if err != nil {
		return nil, err
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring download lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("download %s is owned by another instance", id)
	}
	return fl, nil
}

// List returns the ids of every download with a readable metadata record,
// paired with its metadata. Used by the CLI to show resumable downloads.
func List() (map[string]Meta, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading scratch root: %w", err)
	}

	out := make(map[string]Meta)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".state") {
			continue
		}
		id := strings.TrimSuffix(name, ".state")
		meta, err := Load(id)
		if err != nil {
			continue
		}
		out[id] = meta
	}
	return out, nil
}

// Downloaded sums the on-disk lengths of all n segments for id.
func Downloaded(id string, n int) int64 {
	var total int64
	for i := 1; i <= n; i++ {
		size, err := SegmentSize(id, i)
		if err != nil {
			continue
		}
		total += size
	}
	return total
}
