package redis

import (
	"fmt"

	"github.com/remiges-tech/termsuggest"
	"github.com/remiges-tech/termsuggest/providers"
)

// init registers the Redis provider. Import this package with a blank identifier
// to use Redis as the suggestion index backend:
//
//	import _ "github.com/remiges-tech/termsuggest/providers/redis"
//
//nolint:gochecknoinits // init() is the idiomatic pattern for provider registration
func init() {
	termsuggest.RegisterProvider("redis", NewProvider)
}

// NewProvider creates a Redis provider from the given configuration.
// It implements ProviderFactory and expects config to be of type redis.Config.
func NewProvider(config interface{}) (providers.Provider, error) {
	redisConfig, ok := config.(Config)
	if !ok {
		return nil, fmt.Errorf("invalid configuration type for Redis provider: expected redis.Config, got %T", config)
	}

	return New(redisConfig)
}
