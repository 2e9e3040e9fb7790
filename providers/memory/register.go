package memory

import (
	"fmt"

	"github.com/remiges-tech/termsuggest"
	"github.com/remiges-tech/termsuggest/providers"
)

// init registers the memory provider. Import this package with a blank identifier
// to use process memory as the suggestion index backend:
//
//	import _ "github.com/remiges-tech/termsuggest/providers/memory"
//
//nolint:gochecknoinits // init() is the idiomatic pattern for provider registration
func init() {
	termsuggest.RegisterProvider("memory", NewProvider)
}

// NewProvider creates a memory provider from the given configuration.
// It implements ProviderFactory and accepts memory.Config or nil.
func NewProvider(config interface{}) (providers.Provider, error) {
	switch c := config.(type) {
	case nil:
		return New(Config{}), nil
	case Config:
		return New(c), nil
	default:
		return nil, fmt.Errorf("invalid configuration type for memory provider: expected memory.Config, got %T", config)
	}
}
