package termsuggest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/remiges-tech/termsuggest/internal/logger"
	"github.com/remiges-tech/termsuggest/providers"
)

// FieldReport summarizes one field of a build.
type FieldReport struct {
	Name     string
	Seen     int
	Accepted int
	Rejected int
	// Err is a *SegmentError when the field's segment was abandoned.
	Err error
}

// BuildReport summarizes a build. It is informational only.
type BuildReport struct {
	Mode     BuildMode
	Seen     int
	Accepted int
	Rejected int
	Elapsed  time.Duration
	Fields   []FieldReport
}

// FailedFields returns the names of the fields whose segment was abandoned.
func (r *BuildReport) FailedFields() []string {
	var names []string
	for _, f := range r.Fields {
		if f.Err != nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// SucceededFields returns the names of the fields whose segment was committed.
func (r *BuildReport) SucceededFields() []string {
	var names []string
	for _, f := range r.Fields {
		if f.Err == nil {
			names = append(names, f.Name)
		}
	}
	return names
}

func (r *BuildReport) add(f FieldReport) {
	r.Fields = append(r.Fields, f)
	r.Seen += f.Seen
	r.Accepted += f.Accepted
	r.Rejected += f.Rejected
}

// Builder turns a source corpus into suggestion index segments.
// A Builder has no mutable state; one build at a time per target namespace is assumed.
type Builder struct {
	namespace string
	filter    *TermFilter
	tokenizer *PrefixTokenizer
	extractor *Extractor
	logger    *log.Logger
}

// NewBuilder creates a builder from options. Zero-valued options take their defaults.
func NewBuilder(opts Options) *Builder {
	opts = opts.withDefaults()
	l := opts.Logger
	if l == nil {
		l = logger.New("termsuggest")
	}
	return &Builder{
		namespace: opts.Namespace,
		filter:    NewTermFilter(opts.MinWordLength, opts.MaxWordLength),
		tokenizer: NewPrefixTokenizer(MaxGramLength),
		extractor: NewExtractor(opts.FieldSelector),
		logger:    l,
	}
}

// Build indexes every selected field of corpus into target, one segment per field.
//
// Returns ErrSourceUnavailable (and writes nothing) when the corpus cannot list its fields.
// A field whose segment cannot be finalized is abandoned and reported as a *SegmentError;
// the remaining fields are still built and the returned error joins all segment errors.
// Cancellation is checked between fields; segments committed before it stay visible.
func (b *Builder) Build(ctx context.Context, corpus SourceCorpus, target providers.Provider, mode BuildMode, verbose bool) (*BuildReport, error) {
	start := time.Now()
	report := &BuildReport{Mode: mode}
	defer func() { report.Elapsed = time.Since(start) }()

	fields, err := b.extractor.Fields(ctx, corpus)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	if mode == Fresh {
		if err := target.Reset(ctx, b.namespace); err != nil {
			return report, fmt.Errorf("failed to reset namespace %q: %w", b.namespace, err)
		}
	}

	var errs []error
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fr := b.buildField(ctx, corpus, target, field, verbose)
		report.add(fr)
		if fr.Err == nil {
			b.logger.Info("field indexed", "field", field, "seen", fr.Seen, "accepted", fr.Accepted)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		b.logger.Error("field abandoned", "field", field, "err", fr.Err)
		errs = append(errs, fr.Err)
	}
	return report, errors.Join(errs...)
}

// buildField writes one field's segment. Any failure aborts the segment.
func (b *Builder) buildField(ctx context.Context, corpus SourceCorpus, target providers.Provider, field string, verbose bool) FieldReport {
	fr := FieldReport{Name: field}
	fail := func(err error) FieldReport {
		fr.Err = &SegmentError{Field: field, Err: err}
		return fr
	}

	candidates, err := b.extractor.Field(ctx, corpus, field)
	if err != nil {
		return fail(err)
	}
	defer candidates.Close()

	w, err := target.BeginSegment(ctx, b.namespace, field)
	if err != nil {
		return fail(err)
	}
	abort := func(cause error) FieldReport {
		if abortErr := w.Abort(ctx); abortErr != nil {
			b.logger.Warn("failed to abort segment", "field", field, "err", abortErr)
		}
		return fail(cause)
	}

	for candidates.Next() {
		c := candidates.Candidate()
		fr.Seen++
		if !b.filter.IsIndexable(c.Word) {
			fr.Rejected++
			continue
		}
		fragments := b.tokenizer.Tokenize(c.Word)
		if len(fragments) == 0 {
			fr.Rejected++
			continue
		}
		entry := providers.Entry{
			Field:     c.Field,
			Word:      c.Word,
			Fragments: fragments,
			Frequency: c.DocumentFrequency,
		}
		if err := w.Add(ctx, entry); err != nil {
			return abort(err)
		}
		fr.Accepted++
		if verbose {
			b.logger.Info("indexing term", "field", field, "word", c.Word, "frequency", c.DocumentFrequency)
		}
	}
	if err := candidates.Err(); err != nil {
		return abort(err)
	}
	if err := w.Commit(ctx); err != nil {
		return abort(err)
	}
	return fr
}

// CorpusReport is the outcome of one corpus in a batch.
type CorpusReport struct {
	Name   string
	Report *BuildReport
	// Skipped is set when the corpus could not be opened.
	Skipped bool
	Err     error
}

// BatchReport summarizes BuildBatch.
type BatchReport struct {
	Corpora []CorpusReport
	Elapsed time.Duration
}

// BuildBatch merges several corpora into target. The first corpus that builds is written
// in Fresh mode and every later one in Append mode. A corpus that cannot be opened is
// logged and skipped and does not use up the Fresh build.
func (b *Builder) BuildBatch(ctx context.Context, corpora []NamedCorpus, target providers.Provider, verbose bool) (*BatchReport, error) {
	start := time.Now()
	batch := &BatchReport{}
	defer func() { batch.Elapsed = time.Since(start) }()

	mode := Fresh
	var errs []error
	for _, nc := range corpora {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		b.logger.Info("building corpus", "corpus", nc.Name, "mode", mode)
		report, err := b.Build(ctx, nc.Corpus, target, mode, verbose)
		cr := CorpusReport{Name: nc.Name, Report: report, Err: err}

		switch {
		case err == nil:
			mode = Append
		case errors.Is(err, ErrSourceUnavailable):
			cr.Skipped = true
			b.logger.Error("corpus skipped", "corpus", nc.Name, "err", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			batch.Corpora = append(batch.Corpora, cr)
			return batch, err
		case errors.Is(err, ErrSegmentWriteFailed):
			mode = Append
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("corpus %q: %w", nc.Name, err))
		}
		batch.Corpora = append(batch.Corpora, cr)
		if !cr.Skipped {
			b.logger.Info("corpus built", "corpus", nc.Name, "accepted", report.Accepted, "elapsed", report.Elapsed)
		}
	}
	return batch, errors.Join(errs...)
}
