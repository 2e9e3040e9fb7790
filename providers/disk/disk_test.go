package disk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/remiges-tech/termsuggest/providers"
)

const testNamespace = "test"

func openProvider(t *testing.T, dir string, readOnly bool) *Provider {
	t.Helper()
	p, err := New(Config{Dir: dir, ReadOnly: readOnly})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func commit(t *testing.T, p *Provider, field string, entries ...providers.Entry) {
	t.Helper()
	ctx := context.Background()
	w, err := p.BeginSegment(ctx, testNamespace, field)
	if err != nil {
		t.Fatalf("BeginSegment() error = %v", err)
	}
	for _, e := range entries {
		e.Field = field
		if err := w.Add(ctx, e); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func lookupWords(t *testing.T, p *Provider, fragment string) []string {
	t.Helper()
	postings, err := p.Lookup(context.Background(), testNamespace, fragment, 10)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	out := make([]string, len(postings))
	for i, posting := range postings {
		out[i] = posting.Word
	}
	return out
}

func sameWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiskProvider_CommitAndReopen(t *testing.T) {
	dir := t.TempDir()
	p := openProvider(t, dir, false)

	commit(t, p, "title_t",
		providers.Entry{Word: "Sonar", Fragments: []string{"so", "son"}, Frequency: 2},
		providers.Entry{Word: "Sony", Fragments: []string{"so", "son"}, Frequency: 7},
	)
	commit(t, p, "body_t",
		providers.Entry{Word: "solar", Fragments: []string{"so", "sol"}, Frequency: 2},
	)

	if _, err := os.Stat(filepath.Join(dir, testNamespace, "segment_000001.bin.gz")); err != nil {
		t.Errorf("first segment file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, testNamespace, "segment_000002.bin.gz")); err != nil {
		t.Errorf("second segment file missing: %v", err)
	}

	if got, want := lookupWords(t, p, "so"), []string{"Sony", "Sonar", "solar"}; !sameWords(got, want) {
		t.Errorf("Lookup(so) = %v, want %v", got, want)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	reader := openProvider(t, dir, true)
	if got, want := lookupWords(t, reader, "son"), []string{"Sony", "Sonar"}; !sameWords(got, want) {
		t.Errorf("Lookup(son) after reopen = %v, want %v", got, want)
	}
}

func TestDiskProvider_Lock(t *testing.T) {
	dir := t.TempDir()
	first := openProvider(t, dir, false)

	if _, err := New(Config{Dir: dir}); !errors.Is(err, errLocked) {
		t.Errorf("second writer error = %v, want %v", err, errLocked)
	}
	if _, err := New(Config{Dir: dir, ReadOnly: true}); err != nil {
		t.Errorf("read-only open while locked error = %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	second := openProvider(t, dir, false)
	if second == nil {
		t.Fatal("writer could not reopen after Close")
	}
}

func TestDiskProvider_ReaderSeesCommitAfterRefresh(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := openProvider(t, dir, false)
	reader := openProvider(t, dir, true)

	commit(t, writer, "a_t", providers.Entry{Word: "alpha", Fragments: []string{"al"}, Frequency: 1})
	if got := lookupWords(t, reader, "al"); len(got) != 1 {
		t.Fatalf("Lookup() = %v, want one word", got)
	}

	commit(t, writer, "b_t", providers.Entry{Word: "alps", Fragments: []string{"al"}, Frequency: 4})
	if got := lookupWords(t, reader, "al"); len(got) != 1 {
		t.Errorf("Lookup() before Refresh = %v, want the old view", got)
	}
	if err := reader.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got, want := lookupWords(t, reader, "al"), []string{"alps", "alpha"}; !sameWords(got, want) {
		t.Errorf("Lookup() after Refresh = %v, want %v", got, want)
	}
}

func TestDiskProvider_AbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := openProvider(t, dir, false)

	w, err := p.BeginSegment(ctx, testNamespace, "a_t")
	if err != nil {
		t.Fatalf("BeginSegment() error = %v", err)
	}
	_ = w.Add(ctx, providers.Entry{Field: "a_t", Word: "ghost", Fragments: []string{"gh"}, Frequency: 1})
	if err := w.Abort(ctx); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	files, err := listSegments(filepath.Join(dir, testNamespace))
	if err != nil {
		t.Fatalf("listSegments() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("aborted segment left %d files", len(files))
	}
	if got := lookupWords(t, p, "gh"); len(got) != 0 {
		t.Errorf("Lookup() = %v, want empty", got)
	}
}

func TestDiskProvider_ResetAndLastModified(t *testing.T) {
	ctx := context.Background()
	p := openProvider(t, t.TempDir(), false)

	lm, err := p.LastModified(ctx, testNamespace)
	if err != nil {
		t.Fatalf("LastModified() error = %v", err)
	}
	if !lm.IsZero() {
		t.Errorf("LastModified() of empty namespace = %v, want zero", lm)
	}

	commit(t, p, "a_t", providers.Entry{Word: "alpha", Fragments: []string{"al"}, Frequency: 1})
	lm, err = p.LastModified(ctx, testNamespace)
	if err != nil {
		t.Fatalf("LastModified() error = %v", err)
	}
	if lm.IsZero() {
		t.Error("LastModified() after commit is zero")
	}

	if err := p.Reset(ctx, testNamespace); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := lookupWords(t, p, "al"); len(got) != 0 {
		t.Errorf("Lookup() after Reset = %v, want empty", got)
	}

	commit(t, p, "b_t", providers.Entry{Word: "alto", Fragments: []string{"al"}, Frequency: 1})
	_ = p.Refresh(ctx)
	if got, want := lookupWords(t, p, "al"), []string{"alto"}; !sameWords(got, want) {
		t.Errorf("Lookup() after rebuild = %v, want %v", got, want)
	}
}

func TestDiskProvider_ResetInvalidatesCachedSegments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	nsDir := filepath.Join(dir, testNamespace)
	writer := openProvider(t, dir, false)
	reader := openProvider(t, dir, true)

	commit(t, writer, "a_t", providers.Entry{Word: "alpha", Fragments: []string{"a"}, Frequency: 1})
	if got, want := lookupWords(t, reader, "a"), []string{"alpha"}; !sameWords(got, want) {
		t.Fatalf("Lookup() = %v, want %v", got, want)
	}
	before, err := readGeneration(nsDir)
	if err != nil || before == "" {
		t.Fatalf("readGeneration() = %q, %v, want an ID", before, err)
	}

	if err := writer.Reset(ctx, testNamespace); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	commit(t, writer, "a_t", providers.Entry{Word: "bravo", Fragments: []string{"a"}, Frequency: 1})
	after, err := readGeneration(nsDir)
	if err != nil {
		t.Fatalf("readGeneration() error = %v", err)
	}
	if after == "" || after == before {
		t.Fatalf("generation after Reset = %q, want a new ID (was %q)", after, before)
	}

	// The rebuilt segment_000001 may match the old file's mtime and size on
	// file systems with coarse timestamps; make the cache entry match exactly.
	path := filepath.Join(nsDir, "segment_000001.bin.gz")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	reader.mu.Lock()
	stale := reader.cache[path]
	stale.modTime = info.ModTime()
	stale.size = info.Size()
	reader.cache[path] = stale
	reader.mu.Unlock()

	if err := reader.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got, want := lookupWords(t, reader, "a"), []string{"bravo"}; !sameWords(got, want) {
		t.Errorf("Lookup() after Reset and rebuild = %v, want %v", got, want)
	}
}

func TestEnsureGenerationKeepsExistingID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), testNamespace)
	if err := ensureGeneration(dir); err != nil {
		t.Fatalf("ensureGeneration() error = %v", err)
	}
	first, _ := readGeneration(dir)
	if err := ensureGeneration(dir); err != nil {
		t.Fatalf("ensureGeneration() error = %v", err)
	}
	if second, _ := readGeneration(dir); second != first {
		t.Errorf("generation changed from %q to %q", first, second)
	}
	if got, err := readGeneration(t.TempDir()); err != nil || got != "" {
		t.Errorf("readGeneration() of bare directory = %q, %v, want empty", got, err)
	}
}

func TestDiskProvider_ReadOnly(t *testing.T) {
	ctx := context.Background()
	p := openProvider(t, t.TempDir(), true)

	if _, err := p.BeginSegment(ctx, testNamespace, "a_t"); !errors.Is(err, providers.ErrReadOnly) {
		t.Errorf("BeginSegment() error = %v, want %v", err, providers.ErrReadOnly)
	}
	if err := p.Reset(ctx, testNamespace); !errors.Is(err, providers.ErrReadOnly) {
		t.Errorf("Reset() error = %v, want %v", err, providers.ErrReadOnly)
	}
}

func TestDiskProvider_RemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	nsDir := filepath.Join(dir, testNamespace)
	if err := os.MkdirAll(nsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(nsDir, "segment_000003.bin.gz.tmp")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	openProvider(t, dir, false)
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("temporary file still present, stat error = %v", err)
	}
}

func TestValidNamespace(t *testing.T) {
	tests := []struct {
		namespace string
		wantErr   bool
	}{
		{"termsuggest", false},
		{"products-2024", false},
		{"", true},
		{".", true},
		{"..", true},
		{"a/b", true},
		{`a\b`, true},
	}
	for _, tt := range tests {
		err := validNamespace(tt.namespace)
		if (err != nil) != tt.wantErr {
			t.Errorf("validNamespace(%q) error = %v, wantErr %v", tt.namespace, err, tt.wantErr)
		}
	}
}

func TestParseSegmentName(t *testing.T) {
	tests := []struct {
		name   string
		wantID uint64
		wantOK bool
	}{
		{"segment_000001.bin.gz", 1, true},
		{"segment_123456.bin.gz", 123456, true},
		{"segment_000001.bin.gz.tmp", 0, false},
		{"LOCK", 0, false},
		{"segment_abc.bin.gz", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseSegmentName(tt.name)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("parseSegmentName(%q) = %d, %v, want %d, %v", tt.name, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(nil); err == nil {
		t.Error("NewProvider(nil) should fail")
	}
	p, err := NewProvider(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	p.Close()
}
