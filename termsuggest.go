// Package termsuggest builds a popularity-ranked, prefix-completable term index from a
// full-text corpus and answers "complete this partial word" queries.
//
// Building scans every selected field of a SourceCorpus, filters the field's distinct
// terms, expands each survivor into front-anchored prefix fragments and stores one
// entry per (field, word) with its document frequency. Each field is written as one
// segment that becomes visible as a unit. Querying looks the normalized partial word up
// as an exact fragment key and returns the matching words, most frequent first.
//
// Storage is delegated to a provider, so different backends (memory, local disk, Redis,
// Elasticsearch) can be used interchangeably. Providers self-register during package
// initialization.
//
// Basic usage:
//
//	import (
//		"github.com/remiges-tech/termsuggest"
//		"github.com/remiges-tech/termsuggest/providers/disk"
//	)
//
//	config := termsuggest.NewConfig(disk.Config{Dir: "./suggest"})
//	idx, err := termsuggest.New("disk", config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer idx.Close()
//
//	report, err := idx.Build(ctx, corpus, termsuggest.Fresh, false)
//	words, err := idx.Suggest(ctx, "so", 8) // ["sony", "sonar", ...]
package termsuggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/remiges-tech/termsuggest/providers"
)

// Index defines the suggestion index handle.
// Suggest is safe for concurrent use. Builds are not meant to overlap on one namespace.
type Index interface {
	// Build indexes corpus into this index. See Builder.Build for failure semantics.
	// After the build the handle is refreshed so its own Suggest calls see the new content;
	// other handles keep serving their previous view until they are refreshed.
	Build(ctx context.Context, corpus SourceCorpus, mode BuildMode, verbose bool) (*BuildReport, error)

	// BuildBatch merges several corpora, Fresh for the first and Append for the rest.
	BuildBatch(ctx context.Context, corpora []NamedCorpus, verbose bool) (*BatchReport, error)

	// Suggest returns up to maxResults words completing partial, most frequent first.
	// Returns an error wrapping ErrInvalidQuery for an empty partial, a non-positive
	// maxResults or one above MaxLimit, and an empty slice if nothing matches.
	Suggest(ctx context.Context, partial string, maxResults int) ([]string, error)

	// Reset removes all content of the configured namespace.
	Reset(ctx context.Context) error

	// Refresh makes content committed by other handles visible to Suggest.
	Refresh(ctx context.Context) error

	// LastModified reports when the namespace was last written.
	// Returns errors.ErrUnsupported when the provider cannot tell.
	LastModified(ctx context.Context) (time.Time, error)

	// Close closes the provider and releases resources.
	// It is safe to call multiple times. After Close, other methods fail with ErrIndexClosed.
	Close() error
}

// indexImpl is the default implementation of Index.
type indexImpl struct {
	provider providers.Provider
	options  Options
	builder  *Builder
	engine   *SuggestionEngine

	mu     sync.RWMutex
	closed bool
}

// NewWithProvider wraps an already opened provider.
func NewWithProvider(provider providers.Provider, options Options) Index {
	options = options.withDefaults()
	return &indexImpl{
		provider: provider,
		options:  options,
		builder:  NewBuilder(options),
		engine:   NewSuggestionEngine(provider, options.Namespace),
	}
}

func (ix *indexImpl) checkOpen() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return ErrIndexClosed
	}
	return nil
}

// Build indexes corpus into this index.
// See Index.Build for details.
func (ix *indexImpl) Build(ctx context.Context, corpus SourceCorpus, mode BuildMode, verbose bool) (*BuildReport, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	report, err := ix.builder.Build(ctx, corpus, ix.provider, mode, verbose)
	if refreshErr := ix.provider.Refresh(ctx); refreshErr != nil && err == nil {
		err = fmt.Errorf("failed to refresh after build: %w", refreshErr)
	}
	return report, err
}

// BuildBatch merges several corpora into this index.
// See Index.BuildBatch for details.
func (ix *indexImpl) BuildBatch(ctx context.Context, corpora []NamedCorpus, verbose bool) (*BatchReport, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	report, err := ix.builder.BuildBatch(ctx, corpora, ix.provider, verbose)
	if refreshErr := ix.provider.Refresh(ctx); refreshErr != nil && err == nil {
		err = fmt.Errorf("failed to refresh after build: %w", refreshErr)
	}
	return report, err
}

// Suggest returns ranked completions of partial.
// See Index.Suggest for details.
func (ix *indexImpl) Suggest(ctx context.Context, partial string, maxResults int) ([]string, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}
	if maxResults > ix.options.MaxLimit {
		return nil, ErrLimitExceeded
	}
	return ix.engine.Suggest(ctx, partial, maxResults)
}

// Reset removes all content of the configured namespace.
func (ix *indexImpl) Reset(ctx context.Context) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	if err := ix.provider.Reset(ctx, ix.options.Namespace); err != nil {
		return err
	}
	return ix.provider.Refresh(ctx)
}

// Refresh re-opens the provider's view of committed segments.
func (ix *indexImpl) Refresh(ctx context.Context) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	return ix.provider.Refresh(ctx)
}

// LastModified reports when the namespace was last written.
func (ix *indexImpl) LastModified(ctx context.Context) (time.Time, error) {
	if err := ix.checkOpen(); err != nil {
		return time.Time{}, err
	}
	lm, ok := ix.provider.(providers.LastModifiedProvider)
	if !ok {
		return time.Time{}, errors.ErrUnsupported
	}
	return lm.LastModified(ctx, ix.options.Namespace)
}

// Close closes the provider.
// See Index.Close for details.
func (ix *indexImpl) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.provider.Close()
}

// ResetIfStale resets idx when it was last written more than maxAge ago.
// Providers that cannot report a modification time are left alone.
// Reports whether the index was reset.
func ResetIfStale(ctx context.Context, idx Index, maxAge time.Duration, now time.Time) (bool, error) {
	if maxAge <= 0 {
		return false, nil
	}
	modified, err := idx.LastModified(ctx)
	if errors.Is(err, errors.ErrUnsupported) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if modified.IsZero() || now.Sub(modified) <= maxAge {
		return false, nil
	}
	if err := idx.Reset(ctx); err != nil {
		return false, fmt.Errorf("failed to reset stale index: %w", err)
	}
	return true, nil
}

// New creates a new Index backed by the specified provider.
// The providerType must be registered (case-insensitive). Config contains
// both provider-specific settings and common options.
// Returns ErrProviderNotFound if the provider is not registered.
//
// Example:
//
//	import _ "github.com/remiges-tech/termsuggest/providers/redis"
//
//	config := termsuggest.NewConfig(redis.Config{Addr: "localhost:6379"})
//	idx, err := termsuggest.New("redis", config)
//
//nolint:gocritic // hugeParam: New() is only called at startup, making the copy negligible
func New(providerType string, config Config) (Index, error) {
	factory, exists := providerFactories[strings.ToLower(providerType)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerType)
	}

	provider, err := factory(config.ProviderConfig)
	if err != nil {
		return nil, err
	}

	return NewWithProvider(provider, config.Options), nil
}

// ProviderFactory creates a Provider instance from a configuration.
// The factory must type-assert the config parameter to its expected type.
type ProviderFactory func(config interface{}) (providers.Provider, error)

// providerFactories holds the registered provider factories.
var providerFactories = make(map[string]ProviderFactory)

// RegisterProvider registers a new provider factory.
// Typically called from a provider's init() function. The name is
// case-insensitive. Registering with an existing name overwrites it.
//
// Example:
//
//	package myprovider
//
//	func init() {
//	    termsuggest.RegisterProvider("myprovider", NewProvider)
//	}
//
// Thread safety:
//   - Safe to call during init() (single-threaded)
//   - Not safe to call after init() (no mutex protection)
func RegisterProvider(name string, factory ProviderFactory) {
	providerFactories[strings.ToLower(name)] = factory
}
