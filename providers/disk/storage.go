package disk

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/remiges-tech/termsuggest/internal/segment"
)

const (
	lockName       = "LOCK"
	generationName = "GENERATION"
	segmentPrefix  = "segment_"
	segmentSuffix  = ".bin.gz"
	tmpSuffix      = ".tmp"
)

// errLocked is returned when another writer holds the directory.
var errLocked = errors.New("index directory is locked by another process")

// acquireLock creates dir/LOCK exclusively and records the process ID in it.
func acquireLock(dir string) (*os.File, error) {
	lockPath := filepath.Join(dir, lockName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// validNamespace rejects names that would escape the index directory.
func validNamespace(namespace string) error {
	if namespace == "" || namespace == "." || strings.ContainsAny(namespace, `/\`) || !filepath.IsLocal(namespace) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	return nil
}

func segmentName(id uint64) string {
	return fmt.Sprintf("%s%06d%s", segmentPrefix, id, segmentSuffix)
}

// parseSegmentName extracts the segment number from a committed segment file name.
func parseSegmentName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// segmentFile describes one committed segment on disk.
type segmentFile struct {
	id   uint64
	path string
	info fs.FileInfo
}

// listSegments returns the committed segments of a namespace directory, oldest first.
// A missing directory has no segments.
func listSegments(dir string) ([]segmentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []segmentFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := parseSegmentName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		files = append(files, segmentFile{id: id, path: filepath.Join(dir, entry.Name()), info: info})
	}
	slices.SortFunc(files, func(a, b segmentFile) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return files, nil
}

// ensureGeneration creates dir and gives it a GENERATION file holding a random ID,
// unless it already has one. A namespace directory removed and recreated by a reset
// gets a new ID, so readers can tell its segment files from the old ones.
func ensureGeneration(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create namespace directory: %w", err)
	}
	path := filepath.Join(dir, generationName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmpPath := path + tmpSuffix
	if err := os.WriteFile(tmpPath, []byte(uuid.NewString()), 0o644); err != nil {
		return fmt.Errorf("failed to write generation: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish generation: %w", err)
	}
	return nil
}

// readGeneration returns the generation ID of dir, or "" if it has none.
func readGeneration(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, generationName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read generation: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// removeTempFiles deletes segment files left behind by an interrupted commit.
func removeTempFiles(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), tmpSuffix) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil
	})
}

// writeSegment stores seg as dir/segment_<id>.bin.gz. The file only appears under
// its final name once it is completely written and synced.
func writeSegment(dir string, seg *segment.Segment) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create namespace directory: %w", err)
	}
	finalPath := filepath.Join(dir, segmentName(seg.ID()))
	tmpPath := finalPath + tmpSuffix

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create segment file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(f)
	if err = seg.Encode(gz); err != nil {
		return err
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("failed to flush segment file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync segment file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close segment file: %w", err)
	}
	if err = os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("failed to publish segment file: %w", err)
	}
	return nil
}

// readSegment loads a segment written by writeSegment.
func readSegment(path string) (*segment.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer gz.Close()

	seg, err := segment.Decode(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}
	return seg, nil
}
