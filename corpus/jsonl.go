package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/remiges-tech/termsuggest"
)

// maxLineSize bounds a single JSON-lines document.
const maxLineSize = 16 << 20

// LoadJSONL reads every *.jsonl file of dir, in name order, into a new Memory corpus.
// Each line is one JSON object; string, number and boolean members become fields,
// arrays of those are joined with spaces and nested objects are flattened with dots.
func LoadJSONL(dir string) (*Memory, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		if _, statErr := os.Stat(dir); statErr != nil {
			return nil, statErr
		}
		return nil, fmt.Errorf("no .jsonl files in %s", dir)
	}
	sort.Strings(paths)

	m := NewMemory()
	for _, path := range paths {
		if err := loadFile(m, path); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func loadFile(m *Memory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		doc := make(map[string]string, len(raw))
		flatten("", raw, doc)
		m.Add(doc)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return nil
}

func flatten(prefix string, raw map[string]interface{}, out map[string]string) {
	for k, v := range raw {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(name, val, out)
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := scalar(item); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				out[name] = strings.Join(parts, " ")
			}
		default:
			if s, ok := scalar(val); ok {
				out[name] = s
			}
		}
	}
}

func scalar(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}

// Dir is a JSON-lines corpus directory loaded on first use.
// A directory that cannot be loaded reports the failure from ListFields,
// which makes a build treat the corpus as unavailable.
type Dir struct {
	path string

	once sync.Once
	mem  *Memory
	err  error
}

// NewDir returns a lazily loaded corpus over the JSON-lines files of path.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the corpus directory.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) load() (*Memory, error) {
	d.once.Do(func() {
		d.mem, d.err = LoadJSONL(d.path)
	})
	return d.mem, d.err
}

// ListFields loads the directory and returns its fields.
func (d *Dir) ListFields(ctx context.Context) ([]string, error) {
	m, err := d.load()
	if err != nil {
		return nil, err
	}
	return m.ListFields(ctx)
}

func (d *Dir) DistinctTerms(ctx context.Context, field string) (termsuggest.TermIterator, error) {
	m, err := d.load()
	if err != nil {
		return nil, err
	}
	return m.DistinctTerms(ctx, field)
}

func (d *Dir) DocumentFrequency(ctx context.Context, field, term string) (int, error) {
	m, err := d.load()
	if err != nil {
		return 0, err
	}
	return m.DocumentFrequency(ctx, field, term)
}
