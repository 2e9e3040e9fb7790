package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/remiges-tech/termsuggest"
)

func drain(t *testing.T, it termsuggest.TermIterator) []string {
	t.Helper()
	defer it.Close()
	var terms []string
	for it.Next() {
		terms = append(terms, it.Term())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error = %v", err)
	}
	return terms
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Add(map[string]string{"title_t": "Sony Bravia TV", "body_t": "Sony makes sonar, too."})
	m.Add(map[string]string{"title_t": "Sonar array", "body_t": "--- !!!"})
	m.Add(map[string]string{"title_t": "SONY headphones"})

	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}

	fields, err := m.ListFields(ctx)
	if err != nil {
		t.Fatalf("ListFields() error = %v", err)
	}
	if want := []string{"body_t", "title_t"}; !reflect.DeepEqual(fields, want) {
		t.Errorf("ListFields() = %v, want %v", fields, want)
	}

	it, err := m.DistinctTerms(ctx, "title_t")
	if err != nil {
		t.Fatalf("DistinctTerms() error = %v", err)
	}
	if got, want := drain(t, it), []string{"array", "bravia", "headphones", "sonar", "sony", "tv"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DistinctTerms(title_t) = %v, want %v", got, want)
	}

	tests := []struct {
		field, term string
		want        int
	}{
		{"title_t", "sony", 2},
		{"title_t", "sonar", 1},
		{"body_t", "sonar", 1},
		{"body_t", "too", 1},
		{"title_t", "missing", 0},
		{"nofield", "sony", 0},
	}
	for _, tt := range tests {
		got, err := m.DocumentFrequency(ctx, tt.field, tt.term)
		if err != nil {
			t.Fatalf("DocumentFrequency() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("DocumentFrequency(%q, %q) = %d, want %d", tt.field, tt.term, got, tt.want)
		}
	}

	if _, err := m.DistinctTerms(ctx, "nofield"); err == nil {
		t.Error("DistinctTerms() of unknown field should fail")
	}
}

func TestMemoryDistinctTermsPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Add(map[string]string{"name_t": "zulu A alpha 42 Éclair"})

	it, err := m.DistinctTerms(ctx, "name_t")
	if err != nil {
		t.Fatalf("DistinctTerms() error = %v", err)
	}
	defer it.Close()

	if !it.Next() || it.Term() != "42" {
		t.Fatalf("first term = %q, want %q", it.Term(), "42")
	}
	// "yankee" sorts after the current page and is returned; "10" sorts before it and is not.
	m.Add(map[string]string{"name_t": "yankee 10"})

	got := []string{it.Term()}
	for it.Next() {
		got = append(got, it.Term())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error = %v", err)
	}
	want := []string{"42", "a", "alpha", "yankee", "zulu", "éclair"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DistinctTerms() = %v, want %v", got, want)
	}
}

func TestMemoryDistinctTermsCanceled(t *testing.T) {
	m := NewMemory()
	m.Add(map[string]string{"name_t": "alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	it, err := m.DistinctTerms(ctx, "name_t")
	if err != nil {
		t.Fatalf("DistinctTerms() error = %v", err)
	}
	cancel()
	if it.Next() {
		t.Error("Next() after cancel should report no term")
	}
	if !errors.Is(it.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", it.Err())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadJSONL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jsonl"), `{"title_t": "Solar panel", "price_f": 12.5, "tags_ss": ["green", "energy"]}
{"title_t": "Solar charger", "meta": {"brand_s": "Helio"}}

`)
	writeFile(t, filepath.Join(dir, "b.jsonl"), `{"title_t": "Lunar lamp", "active_b": true}`)
	writeFile(t, filepath.Join(dir, "ignored.txt"), `not a corpus file`)

	m, err := LoadJSONL(dir)
	if err != nil {
		t.Fatalf("LoadJSONL() error = %v", err)
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}

	freq, _ := m.DocumentFrequency(ctx, "title_t", "solar")
	if freq != 2 {
		t.Errorf("DocumentFrequency(title_t, solar) = %d, want 2", freq)
	}
	freq, _ = m.DocumentFrequency(ctx, "tags_ss", "energy")
	if freq != 1 {
		t.Errorf("DocumentFrequency(tags_ss, energy) = %d, want 1", freq)
	}
	freq, _ = m.DocumentFrequency(ctx, "meta.brand_s", "helio")
	if freq != 1 {
		t.Errorf("DocumentFrequency(meta.brand_s, helio) = %d, want 1", freq)
	}
	freq, _ = m.DocumentFrequency(ctx, "active_b", "true")
	if freq != 1 {
		t.Errorf("DocumentFrequency(active_b, true) = %d, want 1", freq)
	}
}

func TestLoadJSONLErrors(t *testing.T) {
	if _, err := LoadJSONL(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadJSONL(missing) error = %v, want not-exist", err)
	}
	if _, err := LoadJSONL(t.TempDir()); err == nil {
		t.Error("LoadJSONL(empty dir) should fail")
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.jsonl"), "{\"ok\": \"yes\"}\n{broken\n")
	if _, err := LoadJSONL(dir); err == nil {
		t.Error("LoadJSONL(malformed) should fail")
	}
}

func TestDirIsLazy(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "products")
	d := NewDir(dir)

	writeFile(t, filepath.Join(dir, "docs.jsonl"), `{"name_t": "kettle"}`)

	fields, err := d.ListFields(ctx)
	if err != nil {
		t.Fatalf("ListFields() error = %v", err)
	}
	if want := []string{"name_t"}; !reflect.DeepEqual(fields, want) {
		t.Errorf("ListFields() = %v, want %v", fields, want)
	}
	if d.Path() != dir {
		t.Errorf("Path() = %q, want %q", d.Path(), dir)
	}
}

func TestDirUnavailable(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "gone"))
	if _, err := d.ListFields(context.Background()); err == nil {
		t.Error("ListFields() of missing directory should fail")
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"ProductCatalog", "content_2024", "GlobalReference", "logs", "FileShare"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(root, "product.jsonl"), "{}")

	corpora, err := Discover(root, DefaultNames)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	var names []string
	for _, c := range corpora {
		names = append(names, c.Name)
	}
	want := []string{"FileShare", "GlobalReference", "ProductCatalog", "content_2024"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Discover() = %v, want %v", names, want)
	}

	if _, err := Discover(filepath.Join(root, "product.jsonl"), DefaultNames); !errors.Is(err, errNoRoot) {
		t.Errorf("Discover(file) error = %v, want %v", err, errNoRoot)
	}
}
