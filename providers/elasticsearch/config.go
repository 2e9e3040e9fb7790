// Package elasticsearch implements the suggestion index Provider interface using Elasticsearch,
// and a source corpus that reads candidate terms from an existing Elasticsearch index.
package elasticsearch

// Config holds Elasticsearch connection parameters and provider-specific options.
type Config struct {
	// URLs is the list of Elasticsearch node URLs.
	URLs []string

	// Index is the name of the Elasticsearch index to use for suggestion data.
	Index string

	// Username for basic authentication.
	Username string

	// Password for basic authentication.
	Password string

	// CloudID for connecting to Elastic Cloud.
	CloudID string

	// APIKey for API key authentication (alternative to username/password).
	APIKey string

	// BulkSize is the number of entries sent per bulk request while a segment is written.
	// Default: 1000
	BulkSize int

	// PageSize is the number of terms fetched per composite aggregation page by Corpus.
	// Default: 1000
	PageSize int

	// NumberOfShards configures the number of primary shards for the index.
	// This setting is ONLY used when the index is automatically created by the provider.
	// If the index already exists, this setting is ignored.
	// For production use, it is recommended to pre-create indices with appropriate settings.
	// Default: 1
	NumberOfShards int

	// NumberOfReplicas configures the number of replica shards.
	// This setting is ONLY used when the index is automatically created by the provider.
	// If the index already exists, this setting is ignored.
	// Default: 0
	NumberOfReplicas int
}

const (
	defaultBulkSize = 1000
	defaultPageSize = 1000
)

// setDefaults applies default values to config fields.
func (c *Config) setDefaults() {
	if c.BulkSize <= 0 {
		c.BulkSize = defaultBulkSize
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.NumberOfShards == 0 {
		c.NumberOfShards = 1
	}
}
