package termsuggest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/remiges-tech/termsuggest/internal/logger"
	"github.com/remiges-tech/termsuggest/providers"
)

// mockCorpus is an in-memory SourceCorpus for testing.
type mockCorpus struct {
	fields   []string
	terms    map[string][]string
	freq     map[string]map[string]int
	listErr  error
	termsErr map[string]error
}

func newMockCorpus() *mockCorpus {
	return &mockCorpus{
		terms:    make(map[string][]string),
		freq:     make(map[string]map[string]int),
		termsErr: make(map[string]error),
	}
}

// add records term in field with the given document frequency.
func (c *mockCorpus) add(field, term string, freq int) *mockCorpus {
	if _, ok := c.freq[field]; !ok {
		c.fields = append(c.fields, field)
		c.freq[field] = make(map[string]int)
	}
	c.terms[field] = append(c.terms[field], term)
	c.freq[field][term] = freq
	return c
}

func (c *mockCorpus) ListFields(ctx context.Context) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.fields, nil
}

func (c *mockCorpus) DistinctTerms(ctx context.Context, field string) (TermIterator, error) {
	if err := c.termsErr[field]; err != nil {
		return nil, err
	}
	return NewSliceIterator(c.terms[field]), nil
}

func (c *mockCorpus) DocumentFrequency(ctx context.Context, field, term string) (int, error) {
	return c.freq[field][term], nil
}

// mockProvider is an in-memory provider for testing. Committed segments are
// visible immediately.
type mockProvider struct {
	mu       sync.Mutex
	segments map[string][][]providers.Entry
	seqs     map[string][][]uint64
	nextSeg  uint64
	resets   int
	begun    int
	aborted  []string
	closed   bool

	failBegin  map[string]error
	failAdd    map[string]error
	failCommit map[string]error
	modified   time.Time
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		segments:   make(map[string][][]providers.Entry),
		seqs:       make(map[string][][]uint64),
		failBegin:  make(map[string]error),
		failAdd:    make(map[string]error),
		failCommit: make(map[string]error),
	}
}

func (m *mockProvider) Reset(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	delete(m.segments, namespace)
	delete(m.seqs, namespace)
	return nil
}

func (m *mockProvider) BeginSegment(ctx context.Context, namespace, field string) (providers.SegmentWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failBegin[field]; err != nil {
		return nil, err
	}
	m.begun++
	m.nextSeg++
	return &mockWriter{provider: m, namespace: namespace, field: field, segment: m.nextSeg}, nil
}

func (m *mockProvider) Lookup(ctx context.Context, namespace, fragment string, limit int) ([]providers.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	postings := []providers.Posting{}
	for i, seg := range m.segments[namespace] {
		for j, e := range seg {
			for _, f := range e.Fragments {
				if f == fragment {
					postings = append(postings, providers.Posting{
						Word: e.Word, Field: e.Field, Frequency: e.Frequency, Seq: m.seqs[namespace][i][j],
					})
					break
				}
			}
		}
	}
	providers.SortPostings(postings)
	if limit > 0 && len(postings) > limit {
		postings = postings[:limit]
	}
	return postings, nil
}

func (m *mockProvider) Refresh(ctx context.Context) error { return nil }

func (m *mockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockProvider) LastModified(ctx context.Context, namespace string) (time.Time, error) {
	return m.modified, nil
}

// entries returns every committed entry of namespace in insertion order.
func (m *mockProvider) entries(namespace string) []providers.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []providers.Entry
	for _, seg := range m.segments[namespace] {
		out = append(out, seg...)
	}
	return out
}

type mockWriter struct {
	provider  *mockProvider
	namespace string
	field     string
	segment   uint64
	entries   []providers.Entry
}

func (w *mockWriter) Add(ctx context.Context, e providers.Entry) error {
	if err := w.provider.failAdd[e.Field]; err != nil {
		return err
	}
	w.entries = append(w.entries, e)
	return nil
}

func (w *mockWriter) Commit(ctx context.Context) error {
	m := w.provider
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCommit[w.field]; err != nil {
		return err
	}
	seqs := make([]uint64, len(w.entries))
	for i := range w.entries {
		seqs[i] = providers.MakeSeq(w.segment, uint32(i))
	}
	m.segments[w.namespace] = append(m.segments[w.namespace], w.entries)
	m.seqs[w.namespace] = append(m.seqs[w.namespace], seqs)
	return nil
}

func (w *mockWriter) Abort(ctx context.Context) error {
	w.provider.mu.Lock()
	defer w.provider.mu.Unlock()
	w.provider.aborted = append(w.provider.aborted, w.field)
	w.entries = nil
	return nil
}

// testOptions are default options with logging silenced.
func testOptions() Options {
	opts := DefaultOptions()
	opts.Logger = logger.Discard()
	return opts
}

func TestIndex_BuildAndSuggest(t *testing.T) {
	RegisterProvider("mock", func(config interface{}) (providers.Provider, error) {
		return newMockProvider(), nil
	})

	idx, err := New("mock", NewConfigWithOptions(nil, testOptions()))
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	defer func() {
		if closeErr := idx.Close(); closeErr != nil {
			t.Errorf("Failed to close index: %v", closeErr)
		}
	}()

	ctx := context.Background()
	corpus := newMockCorpus().
		add("title_t", "sonar", 3).
		add("title_t", "Sony", 5).
		add("title_t", "the", 99).
		add("title_t", "12345", 50)

	report, err := idx.Build(ctx, corpus, Fresh, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.Seen != 4 || report.Accepted != 2 || report.Rejected != 2 {
		t.Errorf("Build() report = %+v, want 4 seen, 2 accepted, 2 rejected", report)
	}

	got, err := idx.Suggest(ctx, "so", 10)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if want := []string{"Sony", "sonar"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Suggest(so) = %v, want %v", got, want)
	}

	got, err = idx.Suggest(ctx, "SON", 10)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if want := []string{"Sony", "sonar"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Suggest(SON) = %v, want %v", got, want)
	}

	if got, _ := idx.Suggest(ctx, "the", 10); len(got) != 0 {
		t.Errorf("Suggest(the) = %v, want empty", got)
	}
}

func TestIndex_SuggestValidation(t *testing.T) {
	opts := testOptions()
	opts.MaxLimit = 20
	idx := NewWithProvider(newMockProvider(), opts)
	defer idx.Close()
	ctx := context.Background()

	tests := []struct {
		name    string
		partial string
		max     int
		wantErr error
	}{
		{"empty partial", "", 5, ErrEmptyQuery},
		{"blank partial", "   ", 5, ErrEmptyQuery},
		{"zero limit", "so", 0, ErrInvalidLimit},
		{"negative limit", "so", -1, ErrInvalidLimit},
		{"limit above max", "so", 21, ErrLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.Suggest(ctx, tt.partial, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Suggest() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("Suggest() error = %v, want it to match ErrInvalidQuery", err)
			}
		})
	}

	got, err := idx.Suggest(ctx, "so", 20)
	if err != nil {
		t.Fatalf("Suggest() on empty index error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Suggest() on empty index = %#v, want empty non-nil slice", got)
	}
}

func TestIndex_Closed(t *testing.T) {
	provider := newMockProvider()
	idx := NewWithProvider(provider, testOptions())
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !provider.closed {
		t.Error("Close() did not close the provider")
	}

	ctx := context.Background()
	if _, err := idx.Suggest(ctx, "so", 5); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Suggest() after Close error = %v, want %v", err, ErrIndexClosed)
	}
	if _, err := idx.Build(ctx, newMockCorpus(), Fresh, false); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Build() after Close error = %v, want %v", err, ErrIndexClosed)
	}
	if err := idx.Refresh(ctx); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Refresh() after Close error = %v, want %v", err, ErrIndexClosed)
	}
}

func TestProviderRegistration(t *testing.T) {
	_, err := New("nonexistent", NewConfig(nil))
	if !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("New() with unknown provider error = %v, want %v", err, ErrProviderNotFound)
	}

	RegisterProvider("MixedCase", func(config interface{}) (providers.Provider, error) {
		return newMockProvider(), nil
	})
	idx, err := New("mixedcase", NewConfig(nil))
	if err != nil {
		t.Fatalf("New() with case-folded name error = %v", err)
	}
	idx.Close()

	RegisterProvider("broken", func(config interface{}) (providers.Provider, error) {
		return nil, errors.New("cannot connect")
	})
	if _, err := New("broken", NewConfig(nil)); err == nil || !strings.Contains(err.Error(), "cannot connect") {
		t.Errorf("New() with failing factory error = %v", err)
	}
}

func TestResetIfStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	tests := []struct {
		name      string
		modified  time.Time
		maxAge    time.Duration
		wantReset bool
	}{
		{"fresh index", now.Add(-24 * time.Hour), week, false},
		{"stale index", now.Add(-8 * 24 * time.Hour), week, true},
		{"empty index", time.Time{}, week, false},
		{"check disabled", now.Add(-30 * 24 * time.Hour), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newMockProvider()
			provider.modified = tt.modified
			idx := NewWithProvider(provider, testOptions())
			defer idx.Close()

			reset, err := ResetIfStale(ctx, idx, tt.maxAge, now)
			if err != nil {
				t.Fatalf("ResetIfStale() error = %v", err)
			}
			if reset != tt.wantReset {
				t.Errorf("ResetIfStale() = %v, want %v", reset, tt.wantReset)
			}
			if wantResets := map[bool]int{true: 1, false: 0}[tt.wantReset]; provider.resets != wantResets {
				t.Errorf("provider reset %d times, want %d", provider.resets, wantResets)
			}
		})
	}
}

// plainProvider hides the LastModified method of mockProvider.
type plainProvider struct {
	providers.Provider
}

func TestResetIfStale_Unsupported(t *testing.T) {
	idx := NewWithProvider(plainProvider{newMockProvider()}, testOptions())
	defer idx.Close()

	if _, err := idx.LastModified(context.Background()); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("LastModified() error = %v, want %v", err, errors.ErrUnsupported)
	}
	reset, err := ResetIfStale(context.Background(), idx, time.Hour, time.Now())
	if err != nil || reset {
		t.Errorf("ResetIfStale() = %v, %v, want false, nil", reset, err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.DefaultLimit != 8 || o.MaxLimit != 100 || o.MinWordLength != 3 || o.MaxWordLength != 45 || o.Namespace != "termsuggest" {
		t.Errorf("withDefaults() = %+v", o)
	}
	if o.FieldSelector == nil {
		t.Fatal("withDefaults() left FieldSelector nil")
	}

	tests := []struct {
		field string
		want  bool
	}{
		{"title_t", true},
		{"title", false},
		{"product_name", false},
		{"x__display name", false},
		{"created_date", false},
		{"stock_threshold", false},
		{"body_txt", true},
	}
	for _, tt := range tests {
		if got := o.FieldSelector(tt.field); got != tt.want {
			t.Errorf("default selector(%q) = %v, want %v", tt.field, got, tt.want)
		}
	}
}
