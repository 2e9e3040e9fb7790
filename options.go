package termsuggest

import (
	"strings"

	"github.com/charmbracelet/log"
)

// defaultLimit is the default number of suggestions to return.
const defaultLimit = 8

// defaultMaxLimit is the maximum allowed results.
const defaultMaxLimit = 100

const (
	// DefaultMinWordLength is the shortest word accepted for indexing.
	DefaultMinWordLength = 3

	// DefaultMaxWordLength is the longest word accepted for indexing.
	DefaultMaxWordLength = 45

	// MaxGramLength is the length of the longest prefix fragment.
	MaxGramLength = 20
)

// BuildMode selects what happens to existing index content when a build starts.
type BuildMode int

const (
	// Fresh discards the namespace's existing content before the first field is written.
	Fresh BuildMode = iota
	// Append writes new segments next to the existing ones.
	// Used to merge several corpora into one suggestion index.
	Append
)

func (m BuildMode) String() string {
	if m == Append {
		return "append"
	}
	return "fresh"
}

// FieldSelector decides which corpus fields are scanned for candidate terms.
type FieldSelector func(field string) bool

// FieldPolicy builds a FieldSelector from substring rules, typically loaded from configuration.
type FieldPolicy struct {
	// Require lists substrings that must all appear in the field name.
	Require []string

	// Exclude lists substrings none of which may appear in the field name.
	Exclude []string
}

// DefaultFieldPolicy accepts fields containing an underscore, skipping display-name,
// name, date and threshold fields.
func DefaultFieldPolicy() FieldPolicy {
	return FieldPolicy{
		Require: []string{"_"},
		Exclude: []string{"__display name", "_name", "date", "threshold"},
	}
}

// Selector returns the policy as a FieldSelector.
func (p FieldPolicy) Selector() FieldSelector {
	require := append([]string(nil), p.Require...)
	exclude := append([]string(nil), p.Exclude...)
	return func(field string) bool {
		for _, s := range require {
			if !strings.Contains(field, s) {
				return false
			}
		}
		for _, s := range exclude {
			if strings.Contains(field, s) {
				return false
			}
		}
		return true
	}
}

// Config holds configuration for the suggestion index.
type Config struct {
	// ProviderConfig contains provider-specific configuration.
	// Each provider defines its own config struct type.
	ProviderConfig interface{}

	// Options contains common build and query settings.
	Options Options
}

// Options contains common build and query settings.
// Use DefaultOptions() for default values.
type Options struct {
	// DefaultLimit is the number of suggestions callers should ask for when they have no preference.
	DefaultLimit int

	// MaxLimit is the maximum number of results that can be requested.
	MaxLimit int

	// MinWordLength and MaxWordLength bound the rune length of indexed words.
	MinWordLength int
	MaxWordLength int

	// Namespace prefixes all keys in the storage backend.
	// Default: "termsuggest".
	Namespace string

	// FieldSelector picks the corpus fields to index.
	// Default: DefaultFieldPolicy().Selector().
	FieldSelector FieldSelector

	// Logger receives build progress. Default: a logger prefixed "termsuggest".
	Logger *log.Logger
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:  defaultLimit,
		MaxLimit:      defaultMaxLimit,
		MinWordLength: DefaultMinWordLength,
		MaxWordLength: DefaultMaxWordLength,
		Namespace:     "termsuggest",
		FieldSelector: DefaultFieldPolicy().Selector(),
	}
}

// withDefaults fills zero-valued options from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = d.DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = d.MaxLimit
	}
	if o.MinWordLength <= 0 {
		o.MinWordLength = d.MinWordLength
	}
	if o.MaxWordLength <= 0 {
		o.MaxWordLength = d.MaxWordLength
	}
	if o.Namespace == "" {
		o.Namespace = d.Namespace
	}
	if o.FieldSelector == nil {
		o.FieldSelector = d.FieldSelector
	}
	return o
}

// NewConfig creates a new configuration with default options.
func NewConfig(providerConfig interface{}) Config {
	return Config{
		ProviderConfig: providerConfig,
		Options:        DefaultOptions(),
	}
}

// NewConfigWithOptions creates a new configuration with custom options.
func NewConfigWithOptions(providerConfig interface{}, options Options) Config {
	return Config{
		ProviderConfig: providerConfig,
		Options:        options,
	}
}
