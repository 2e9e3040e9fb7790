// Package corpus provides source corpora for suggestion index builds: an in-memory
// full-text corpus, a loader for directories of JSON-lines documents, and discovery
// of corpus directories under a root.
package corpus

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/RoaringBitmap/roaring"
	"github.com/clipperhouse/uax29/v2/words"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/remiges-tech/termsuggest"
)

// Memory is an in-memory full-text corpus. Each field keeps a term dictionary
// mapping every lower-cased word to the set of documents containing it.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	fields map[string]*patricia.Trie
	order  []string
	docs   uint32
}

// NewMemory creates an empty corpus.
func NewMemory() *Memory {
	return &Memory{fields: make(map[string]*patricia.Trie)}
}

// Add indexes one document and returns its number. Field values are split into words
// on Unicode word boundaries; segments without a letter or digit are dropped.
func (m *Memory) Add(doc map[string]string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.docs
	m.docs++

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		trie, ok := m.fields[name]
		if !ok {
			trie = patricia.NewTrie()
			m.fields[name] = trie
			m.order = append(m.order, name)
		}
		seg := words.FromString(doc[name])
		for seg.Next() {
			token := seg.Value()
			if strings.IndexFunc(token, isAlnum) < 0 {
				continue
			}
			key := patricia.Prefix(strings.ToLower(token))
			if item := trie.Get(key); item != nil {
				item.(*roaring.Bitmap).Add(id)
				continue
			}
			trie.Insert(key, roaring.BitmapOf(id))
		}
	}
	return id
}

// Len returns the number of documents added.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.docs)
}

// ListFields returns the field names in the order they were first seen.
func (m *Memory) ListFields(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order), nil
}

// DistinctTerms returns the terms of field in ascending byte order.
//
// Terms are read from the dictionary one leading byte at a time, so at most one
// page of terms is held in memory. A term added during iteration is returned if
// its page has not been read yet.
func (m *Memory) DistinctTerms(ctx context.Context, field string) (termsuggest.TermIterator, error) {
	m.mu.RLock()
	trie, ok := m.fields[field]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}
	return &trieIterator{ctx: ctx, mu: &m.mu, trie: trie, pos: -1}, nil
}

// trieIterator pages through a term dictionary by leading byte.
type trieIterator struct {
	ctx  context.Context
	mu   *sync.RWMutex
	trie *patricia.Trie
	next int // next leading byte to read
	page []string
	pos  int
	err  error
}

func (it *trieIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	for it.pos >= len(it.page) {
		if it.next > 0xff {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if err := it.load(byte(it.next)); err != nil {
			it.err = err
			return false
		}
		it.next++
	}
	return true
}

// load replaces the current page with the sorted terms starting with lead.
func (it *trieIterator) load(lead byte) error {
	it.page = it.page[:0]
	it.pos = 0
	it.mu.RLock()
	defer it.mu.RUnlock()
	err := it.trie.VisitSubtree(patricia.Prefix{lead}, func(prefix patricia.Prefix, item patricia.Item) error {
		it.page = append(it.page, string(prefix))
		return nil
	})
	if err != nil {
		return err
	}
	slices.Sort(it.page)
	return nil
}

func (it *trieIterator) Term() string {
	if it.pos < 0 || it.pos >= len(it.page) {
		return ""
	}
	return it.page[it.pos]
}

func (it *trieIterator) Err() error { return it.err }

func (it *trieIterator) Close() error {
	it.page = nil
	return nil
}

// DocumentFrequency returns the number of documents whose field contains term.
// term is matched exactly, so it must be lower-cased like the indexed words.
func (m *Memory) DocumentFrequency(ctx context.Context, field, term string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trie, ok := m.fields[field]
	if !ok {
		return 0, nil
	}
	item := trie.Get(patricia.Prefix(term))
	if item == nil {
		return 0, nil
	}
	return int(item.(*roaring.Bitmap).GetCardinality()), nil
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
