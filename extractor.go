package termsuggest

import (
	"context"
	"fmt"
)

// Candidate is one distinct term of one field, annotated with its document frequency.
type Candidate struct {
	Field             string
	Word              string
	DocumentFrequency int
}

// Extractor enumerates candidate terms of the fields accepted by its selector.
type Extractor struct {
	selector FieldSelector
}

// NewExtractor returns an extractor restricted to the fields accepted by selector.
// A nil selector accepts every field.
func NewExtractor(selector FieldSelector) *Extractor {
	if selector == nil {
		selector = func(string) bool { return true }
	}
	return &Extractor{selector: selector}
}

// Fields returns the selected fields of corpus in the order the corpus lists them.
func (e *Extractor) Fields(ctx context.Context, corpus SourceCorpus) ([]string, error) {
	all, err := corpus.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(all))
	for _, f := range all {
		if e.selector(f) {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// Field returns the candidates of a single field. The field is not checked
// against the selector.
func (e *Extractor) Field(ctx context.Context, corpus SourceCorpus, field string) (*CandidateIterator, error) {
	it := &CandidateIterator{ctx: ctx, corpus: corpus, fields: []string{field}}
	if err := it.openField(); err != nil {
		return nil, err
	}
	return it, nil
}

// ExtractCandidates returns the candidates of every selected field, one field after the other.
// Terms are pulled from the corpus only as the iterator advances.
func (e *Extractor) ExtractCandidates(ctx context.Context, corpus SourceCorpus) (*CandidateIterator, error) {
	fields, err := e.Fields(ctx, corpus)
	if err != nil {
		return nil, err
	}
	it := &CandidateIterator{ctx: ctx, corpus: corpus, fields: fields}
	if len(fields) > 0 {
		if err := it.openField(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// CandidateIterator is a lazy, single-pass sequence of candidates.
type CandidateIterator struct {
	ctx     context.Context
	corpus  SourceCorpus
	fields  []string
	idx     int
	terms   TermIterator
	current Candidate
	err     error
}

// openField opens the term iterator of fields[idx].
func (it *CandidateIterator) openField() error {
	field := it.fields[it.idx]
	terms, err := it.corpus.DistinctTerms(it.ctx, field)
	if err != nil {
		return fmt.Errorf("failed to list terms of field %q: %w", field, err)
	}
	it.terms = terms
	return nil
}

// Next advances to the next candidate.
func (it *CandidateIterator) Next() bool {
	if it.err != nil || it.terms == nil {
		return false
	}
	for {
		if it.terms.Next() {
			field := it.fields[it.idx]
			word := it.terms.Term()
			freq, err := it.corpus.DocumentFrequency(it.ctx, field, word)
			if err != nil {
				it.err = fmt.Errorf("failed to count documents for %q in field %q: %w", word, field, err)
				return false
			}
			it.current = Candidate{Field: field, Word: word, DocumentFrequency: freq}
			return true
		}
		if err := it.terms.Err(); err != nil {
			it.err = fmt.Errorf("failed to read terms of field %q: %w", it.fields[it.idx], err)
			return false
		}
		_ = it.terms.Close()
		it.terms = nil
		it.idx++
		if it.idx >= len(it.fields) {
			return false
		}
		if err := it.openField(); err != nil {
			it.err = err
			return false
		}
	}
}

// Candidate returns the current candidate.
func (it *CandidateIterator) Candidate() Candidate {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *CandidateIterator) Err() error {
	return it.err
}

// Close releases the underlying term iterator.
func (it *CandidateIterator) Close() error {
	if it.terms == nil {
		return nil
	}
	err := it.terms.Close()
	it.terms = nil
	return err
}
