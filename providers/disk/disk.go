// Package disk implements the suggestion index Provider interface on the local file system.
//
// Each namespace is a directory under Config.Dir holding one gzip-compressed file per
// committed segment:
//
//	<dir>/<namespace>/segment_000001.bin.gz
//	<dir>/<namespace>/segment_000002.bin.gz
//	<dir>/<namespace>/GENERATION
//
// GENERATION holds a random ID written when the directory is created, so a reader
// never reuses a segment decoded before the namespace was reset.
//
// A segment file is written under a temporary name and renamed into place once synced,
// so readers in other processes never see a partial segment. Only one writer may use a
// directory at a time; it is guarded by a LOCK file. Read-only providers take no lock.
package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/remiges-tech/termsuggest/internal/segment"
	"github.com/remiges-tech/termsuggest/providers"
)

// errClosed is returned by every method after Close.
var errClosed = errors.New("disk provider closed")

// Config holds disk provider parameters.
type Config struct {
	// Dir is the index root directory. Required.
	Dir string

	// ReadOnly opens the directory for lookups only. Write methods return providers.ErrReadOnly.
	ReadOnly bool
}

// cachedSegment is a decoded segment file, valid while the file is unchanged
// and its directory has not been recreated.
type cachedSegment struct {
	generation string
	modTime    time.Time
	size       int64
	seg        *segment.Segment
}

// Provider implements the Provider interface on a directory tree.
// All methods are safe for concurrent use.
type Provider struct {
	dir      string
	readOnly bool
	lock     *os.File

	mu     sync.RWMutex
	closed bool
	nextID map[string]uint64
	views  map[string][]*segment.Segment
	cache  map[string]cachedSegment
}

// New opens the index directory described by config.
// A writable provider creates the directory, takes the LOCK file and removes
// temporary files left by an interrupted commit.
func New(config Config) (*Provider, error) {
	if config.Dir == "" {
		return nil, errors.New("disk provider requires a directory")
	}
	p := &Provider{
		dir:      config.Dir,
		readOnly: config.ReadOnly,
		nextID:   make(map[string]uint64),
		views:    make(map[string][]*segment.Segment),
		cache:    make(map[string]cachedSegment),
	}
	if config.ReadOnly {
		return p, nil
	}

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	lock, err := acquireLock(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if err := removeTempFiles(config.Dir); err != nil {
		releaseLock(lock)
		return nil, fmt.Errorf("failed to clean temporary files: %w", err)
	}
	p.lock = lock
	return p, nil
}

func (p *Provider) namespaceDir(namespace string) (string, error) {
	if err := validNamespace(namespace); err != nil {
		return "", err
	}
	return filepath.Join(p.dir, namespace), nil
}

// checkWritable returns the namespace directory if the provider may write to it.
func (p *Provider) checkWritable(namespace string) (string, error) {
	if p.closed {
		return "", errClosed
	}
	if p.readOnly {
		return "", providers.ErrReadOnly
	}
	return p.namespaceDir(namespace)
}

// Reset deletes every segment file of namespace.
func (p *Provider) Reset(ctx context.Context, namespace string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	dir, err := p.checkWritable(namespace)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove namespace %q: %w", namespace, err)
	}
	delete(p.nextID, namespace)
	for path := range p.cache {
		if filepath.Dir(path) == dir {
			delete(p.cache, path)
		}
	}
	return nil
}

// BeginSegment starts a segment that is written to disk on Commit.
func (p *Provider) BeginSegment(ctx context.Context, namespace, field string) (providers.SegmentWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dir, err := p.checkWritable(namespace)
	if err != nil {
		return nil, err
	}
	id, ok := p.nextID[namespace]
	if !ok {
		if err := ensureGeneration(dir); err != nil {
			return nil, err
		}
		files, err := listSegments(dir)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			id = files[len(files)-1].id
		}
	}
	id++
	p.nextID[namespace] = id

	return &segmentWriter{
		provider: p,
		dir:      dir,
		builder:  segment.NewBuilder(id, field),
	}, nil
}

// Lookup searches the provider's view of namespace, loading it on first use.
func (p *Provider) Lookup(ctx context.Context, namespace, fragment string, limit int) ([]providers.Posting, error) {
	segments, err := p.view(namespace)
	if err != nil {
		return nil, err
	}
	return segment.Lookup(segments, fragment, limit), nil
}

func (p *Provider) view(namespace string) ([]*segment.Segment, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errClosed
	}
	segments, ok := p.views[namespace]
	p.mu.RUnlock()
	if ok {
		return segments, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errClosed
	}
	if segments, ok := p.views[namespace]; ok {
		return segments, nil
	}
	segments, err := p.loadNamespace(namespace)
	if err != nil {
		return nil, err
	}
	p.views[namespace] = segments
	return segments, nil
}

// loadNamespace reads the committed segments of namespace, reusing decoded
// segments whose file has not changed within the same directory generation.
// Callers hold p.mu.
func (p *Provider) loadNamespace(namespace string) ([]*segment.Segment, error) {
	dir, err := p.namespaceDir(namespace)
	if err != nil {
		return nil, err
	}
	generation, err := readGeneration(dir)
	if err != nil {
		return nil, err
	}
	files, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	segments := make([]*segment.Segment, 0, len(files))
	for _, f := range files {
		c, ok := p.cache[f.path]
		if ok && c.generation == generation && c.modTime.Equal(f.info.ModTime()) && c.size == f.info.Size() {
			segments = append(segments, c.seg)
			continue
		}
		seg, err := readSegment(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				// Removed by a concurrent reset.
				continue
			}
			return nil, err
		}
		p.cache[f.path] = cachedSegment{
			generation: generation,
			modTime:    f.info.ModTime(),
			size:       f.info.Size(),
			seg:        seg,
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// Refresh drops every loaded view. Unchanged segment files are not decoded again.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.views = make(map[string][]*segment.Segment)
	for path := range p.cache {
		if _, err := os.Stat(path); err != nil {
			delete(p.cache, path)
		}
	}
	return nil
}

// LastModified returns the modification time of the newest segment file of
// namespace, or the zero time when the namespace is empty.
func (p *Provider) LastModified(ctx context.Context, namespace string) (time.Time, error) {
	dir, err := p.namespaceDir(namespace)
	if err != nil {
		return time.Time{}, err
	}
	files, err := listSegments(dir)
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, f := range files {
		if f.info.ModTime().After(newest) {
			newest = f.info.ModTime()
		}
	}
	return newest, nil
}

// Close releases the directory lock. Segments not yet committed are lost.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.views = nil
	p.cache = nil
	return releaseLock(p.lock)
}

func (p *Provider) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// segmentWriter buffers one field in memory and writes it out on Commit.
type segmentWriter struct {
	provider *Provider
	dir      string
	builder  *segment.Builder
}

func (w *segmentWriter) Add(ctx context.Context, entry providers.Entry) error {
	if w.builder == nil {
		return errors.New("segment already finished")
	}
	w.builder.Add(entry)
	return nil
}

func (w *segmentWriter) Commit(ctx context.Context) error {
	if w.builder == nil {
		return errors.New("segment already finished")
	}
	if w.provider.isClosed() {
		return errClosed
	}
	seg := w.builder.Build()
	w.builder = nil
	return writeSegment(w.dir, seg)
}

func (w *segmentWriter) Abort(ctx context.Context) error {
	w.builder = nil
	return nil
}
