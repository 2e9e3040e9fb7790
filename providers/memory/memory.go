// Package memory implements the suggestion index Provider interface in process memory.
//
// Committed segments live in a Store. Every Provider reading from the store holds its own
// snapshot of the segment list, taken on first use of a namespace and replaced only by
// Refresh, so a reader keeps serving the state it last saw while a builder writes.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/remiges-tech/termsuggest/internal/segment"
	"github.com/remiges-tech/termsuggest/providers"
)

// errClosed is returned by every method after Close.
var errClosed = errors.New("memory provider closed")

// Store holds committed segments per namespace. It can be shared by several providers.
type Store struct {
	mu       sync.RWMutex
	segments map[string][]*segment.Segment
	nextID   uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{segments: make(map[string][]*segment.Segment)}
}

func (s *Store) reset(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.segments, namespace)
}

func (s *Store) nextSegmentID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Store) commit(namespace string, seg *segment.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[namespace] = append(s.segments[namespace], seg)
}

func (s *Store) snapshot(namespace string) []*segment.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.segments[namespace]
	return list[:len(list):len(list)]
}

// Config holds memory provider parameters.
type Config struct {
	// Store is the shared segment store. A new empty store is created when nil.
	Store *Store
}

// Provider implements the Provider interface over a Store.
// All methods are safe for concurrent use.
type Provider struct {
	store *Store

	mu     sync.RWMutex
	views  map[string][]*segment.Segment
	closed bool
}

// New creates a provider reading and writing store.
func New(config Config) *Provider {
	store := config.Store
	if store == nil {
		store = NewStore()
	}
	return &Provider{
		store: store,
		views: make(map[string][]*segment.Segment),
	}
}

// Store returns the underlying store, for opening further handles on it.
func (p *Provider) Store() *Store {
	return p.store
}

// Reset removes every segment of namespace from the store.
func (p *Provider) Reset(ctx context.Context, namespace string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.store.reset(namespace)
	return nil
}

// BeginSegment starts a segment that becomes visible in the store on Commit.
func (p *Provider) BeginSegment(ctx context.Context, namespace, field string) (providers.SegmentWriter, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return &segmentWriter{
		store:     p.store,
		namespace: namespace,
		builder:   segment.NewBuilder(p.store.nextSegmentID(), field),
	}, nil
}

// Lookup searches this provider's snapshot of namespace.
func (p *Provider) Lookup(ctx context.Context, namespace, fragment string, limit int) ([]providers.Posting, error) {
	segments, err := p.view(namespace)
	if err != nil {
		return nil, err
	}
	return segment.Lookup(segments, fragment, limit), nil
}

// view returns the snapshot of namespace, taking it on first use.
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
	if segments, ok := p.views[namespace]; ok {
		return segments, nil
	}
	segments = p.store.snapshot(namespace)
	p.views[namespace] = segments
	return segments, nil
}

// Refresh drops all snapshots; the next Lookup of each namespace takes a new one.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.views = make(map[string][]*segment.Segment)
	return nil
}

// Close releases the provider's snapshots. The store itself is left intact.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.views = nil
	return nil
}

func (p *Provider) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errClosed
	}
	return nil
}

// segmentWriter buffers one field until Commit.
type segmentWriter struct {
	store     *Store
	namespace string
	builder   *segment.Builder
	done      bool
}

func (w *segmentWriter) Add(ctx context.Context, entry providers.Entry) error {
	if w.done {
		return errors.New("segment already finished")
	}
	w.builder.Add(entry)
	return nil
}

func (w *segmentWriter) Commit(ctx context.Context) error {
	if w.done {
		return errors.New("segment already finished")
	}
	w.done = true
	w.store.commit(w.namespace, w.builder.Build())
	return nil
}

func (w *segmentWriter) Abort(ctx context.Context) error {
	w.done = true
	w.builder = nil
	return nil
}
