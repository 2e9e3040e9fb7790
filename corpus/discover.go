package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/remiges-tech/termsuggest"
)

// errNoRoot is returned by Discover when the root is not a directory.
var errNoRoot = errors.New("corpus root is not a directory")

// DefaultNames are the directory name fragments that identify corpus directories.
var DefaultNames = []string{"product", "content", "file", "globalreference"}

// Discover returns a lazily loaded corpus for every subdirectory of root whose
// lower-cased name contains one of names, in directory name order.
func Discover(root string, names []string) ([]termsuggest.NamedCorpus, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errNoRoot, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var corpora []termsuggest.NamedCorpus
	for _, entry := range entries {
		if !entry.IsDir() || !matchesAny(entry.Name(), names) {
			continue
		}
		corpora = append(corpora, termsuggest.NamedCorpus{
			Name:   entry.Name(),
			Corpus: NewDir(filepath.Join(root, entry.Name())),
		})
	}
	return corpora, nil
}

func matchesAny(name string, names []string) bool {
	lower := strings.ToLower(name)
	for _, n := range names {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// unavailable is a corpus that could not be opened.
type unavailable struct {
	err error
}

// Unavailable returns a corpus whose every method fails with err. Builds treat it
// as a corpus that cannot be opened and skip it.
func Unavailable(err error) termsuggest.SourceCorpus {
	return unavailable{err: err}
}

func (u unavailable) ListFields(ctx context.Context) ([]string, error) {
	return nil, u.err
}

func (u unavailable) DistinctTerms(ctx context.Context, field string) (termsuggest.TermIterator, error) {
	return nil, u.err
}

func (u unavailable) DocumentFrequency(ctx context.Context, field, term string) (int, error) {
	return 0, u.err
}
