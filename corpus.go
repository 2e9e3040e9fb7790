package termsuggest

import "context"

// SourceCorpus is a read-only full-text index the suggestion index is built from.
type SourceCorpus interface {
	// ListFields returns the names of the fields the corpus contains.
	// An error means the corpus cannot be opened.
	ListFields(ctx context.Context) ([]string, error)

	// DistinctTerms enumerates the terms that appear in at least one document of field.
	DistinctTerms(ctx context.Context, field string) (TermIterator, error)

	// DocumentFrequency returns the number of documents whose field contains term.
	DocumentFrequency(ctx context.Context, field, term string) (int, error)
}

// TermIterator is a lazy, single-pass sequence of terms.
//
// Example:
//
//	it, err := corpus.DistinctTerms(ctx, "title_t")
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//		fmt.Println(it.Term())
//	}
//	if err := it.Err(); err != nil { ... }
type TermIterator interface {
	// Next advances to the next term and reports whether there is one.
	Next() bool

	// Term returns the current term.
	Term() string

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases the iterator's resources.
	Close() error
}

// NamedCorpus labels a corpus for batch builds and reports.
type NamedCorpus struct {
	Name   string
	Corpus SourceCorpus
}

// sliceIterator iterates over an in-memory term list.
type sliceIterator struct {
	terms []string
	pos   int
}

// NewSliceIterator returns a TermIterator over terms.
func NewSliceIterator(terms []string) TermIterator {
	return &sliceIterator{terms: terms, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.terms) {
		it.pos = len(it.terms)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Term() string {
	if it.pos < 0 || it.pos >= len(it.terms) {
		return ""
	}
	return it.terms[it.pos]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
