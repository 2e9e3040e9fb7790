package disk

import (
	"fmt"

	"github.com/remiges-tech/termsuggest"
	"github.com/remiges-tech/termsuggest/providers"
)

// init registers the disk provider. Import this package with a blank identifier
// to store the suggestion index in a local directory:
//
//	import _ "github.com/remiges-tech/termsuggest/providers/disk"
//
//nolint:gochecknoinits // init() is the idiomatic pattern for provider registration
func init() {
	termsuggest.RegisterProvider("disk", NewProvider)
}

// NewProvider creates a disk provider from the given configuration.
// It implements ProviderFactory and accepts disk.Config.
func NewProvider(config interface{}) (providers.Provider, error) {
	cfg, ok := config.(Config)
	if !ok {
		return nil, fmt.Errorf("invalid configuration type for disk provider: expected disk.Config, got %T", config)
	}
	return New(cfg)
}
