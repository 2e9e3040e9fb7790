/*
Package config manages the TOML configuration of the termsuggest command.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/remiges-tech/termsuggest"
	"github.com/remiges-tech/termsuggest/corpus"
	"github.com/remiges-tech/termsuggest/providers/disk"
	"github.com/remiges-tech/termsuggest/providers/elasticsearch"
	"github.com/remiges-tech/termsuggest/providers/memory"
	"github.com/remiges-tech/termsuggest/providers/redis"
)

// Config holds the entire config structure
type Config struct {
	Index         IndexConfig         `toml:"index"`
	Build         BuildConfig         `toml:"build"`
	Redis         RedisConfig         `toml:"redis"`
	Elasticsearch ElasticsearchConfig `toml:"elasticsearch"`
	Discovery     DiscoveryConfig     `toml:"discovery"`
	Corpora       []CorpusConfig      `toml:"corpus"`
	Log           LogConfig           `toml:"log"`
}

// IndexConfig selects where the suggestion index lives.
type IndexConfig struct {
	Provider  string `toml:"provider"` // memory, disk, redis, elasticsearch
	Namespace string `toml:"namespace"`
	Dir       string `toml:"dir"`
	// MaxAgeDays resets an index older than this before a build. 0 disables the check.
	MaxAgeDays int `toml:"max_age_days"`
}

// BuildConfig holds term filtering and query limits.
type BuildConfig struct {
	MinWordLength int      `toml:"min_word_length"`
	MaxWordLength int      `toml:"max_word_length"`
	DefaultLimit  int      `toml:"default_limit"`
	MaxLimit      int      `toml:"max_limit"`
	RequireFields []string `toml:"require_fields"`
	ExcludeFields []string `toml:"exclude_fields"`
}

// RedisConfig holds Redis connection options.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// ElasticsearchConfig holds Elasticsearch connection options, shared by the
// suggestion index and elasticsearch corpora.
type ElasticsearchConfig struct {
	URLs     []string `toml:"urls"`
	Index    string   `toml:"index"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	CloudID  string   `toml:"cloud_id"`
	APIKey   string   `toml:"api_key"`
	BulkSize int      `toml:"bulk_size"`
	PageSize int      `toml:"page_size"`
}

// DiscoveryConfig finds corpus directories under a root.
type DiscoveryConfig struct {
	Root  string   `toml:"root"`
	Names []string `toml:"names"`
}

// CorpusConfig names one explicit corpus.
type CorpusConfig struct {
	Name  string `toml:"name"`
	Type  string `toml:"type"` // jsonl, elasticsearch
	Path  string `toml:"path"`
	Index string `toml:"index"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	opts := termsuggest.DefaultOptions()
	policy := termsuggest.DefaultFieldPolicy()
	return &Config{
		Index: IndexConfig{
			Provider:   "disk",
			Namespace:  opts.Namespace,
			Dir:        "./suggest",
			MaxAgeDays: 7,
		},
		Build: BuildConfig{
			MinWordLength: opts.MinWordLength,
			MaxWordLength: opts.MaxWordLength,
			DefaultLimit:  opts.DefaultLimit,
			MaxLimit:      opts.MaxLimit,
			RequireFields: policy.Require,
			ExcludeFields: policy.Exclude,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Elasticsearch: ElasticsearchConfig{
			URLs:  []string{"http://localhost:9200"},
			Index: "termsuggest",
		},
		Discovery: DiscoveryConfig{
			Names: append([]string(nil), corpus.DefaultNames...),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file over the defaults. Keys missing from the file keep their default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warnf("Ignoring unknown config keys in %s: %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path as TOML, creating the parent directory.
func Save(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Index.Provider) {
	case "memory", "disk", "redis", "elasticsearch":
	default:
		return fmt.Errorf("unknown index provider %q", c.Index.Provider)
	}
	if c.Build.MinWordLength > 0 && c.Build.MaxWordLength > 0 && c.Build.MinWordLength > c.Build.MaxWordLength {
		return fmt.Errorf("min_word_length %d exceeds max_word_length %d", c.Build.MinWordLength, c.Build.MaxWordLength)
	}
	for i, cc := range c.Corpora {
		switch cc.Type {
		case "jsonl":
			if cc.Path == "" {
				return fmt.Errorf("corpus %d: jsonl corpus needs a path", i)
			}
		case "elasticsearch":
			if cc.Index == "" {
				return fmt.Errorf("corpus %d: elasticsearch corpus needs an index", i)
			}
		default:
			return fmt.Errorf("corpus %d: unknown type %q", i, cc.Type)
		}
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			return err
		}
	}
	return nil
}

// MaxAge returns the stale index threshold.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Index.MaxAgeDays) * 24 * time.Hour
}

// LogLevel returns the configured level, info when unset or invalid.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Options returns the library options described by the build section.
func (c *Config) Options(logger *log.Logger) termsuggest.Options {
	opts := termsuggest.DefaultOptions()
	opts.Namespace = c.Index.Namespace
	opts.MinWordLength = c.Build.MinWordLength
	opts.MaxWordLength = c.Build.MaxWordLength
	opts.DefaultLimit = c.Build.DefaultLimit
	opts.MaxLimit = c.Build.MaxLimit
	opts.FieldSelector = termsuggest.FieldPolicy{
		Require: c.Build.RequireFields,
		Exclude: c.Build.ExcludeFields,
	}.Selector()
	opts.Logger = logger
	return opts
}

// ProviderConfig returns the provider name and its configuration value, ready for termsuggest.New.
func (c *Config) ProviderConfig() (string, interface{}) {
	name := strings.ToLower(c.Index.Provider)
	switch name {
	case "memory":
		return name, memory.Config{}
	case "redis":
		return name, redis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		}
	case "elasticsearch":
		return name, c.elasticsearchConfig()
	default:
		return name, disk.Config{Dir: c.Index.Dir}
	}
}

func (c *Config) elasticsearchConfig() elasticsearch.Config {
	return elasticsearch.Config{
		URLs:     c.Elasticsearch.URLs,
		Index:    c.Elasticsearch.Index,
		Username: c.Elasticsearch.Username,
		Password: c.Elasticsearch.Password,
		CloudID:  c.Elasticsearch.CloudID,
		APIKey:   c.Elasticsearch.APIKey,
		BulkSize: c.Elasticsearch.BulkSize,
		PageSize: c.Elasticsearch.PageSize,
	}
}

// Sources returns the corpora to build from: the explicit [[corpus]] entries followed by
// the directories found under discovery.root. A corpus that cannot be reached is still
// returned, so a batch build reports and skips it.
func (c *Config) Sources() ([]termsuggest.NamedCorpus, error) {
	var sources []termsuggest.NamedCorpus
	for _, cc := range c.Corpora {
		name := cc.Name
		switch cc.Type {
		case "jsonl":
			if name == "" {
				name = filepath.Base(cc.Path)
			}
			sources = append(sources, termsuggest.NamedCorpus{Name: name, Corpus: corpus.NewDir(cc.Path)})
		case "elasticsearch":
			if name == "" {
				name = cc.Index
			}
			esConfig := c.elasticsearchConfig()
			var src termsuggest.SourceCorpus
			esCorpus, err := elasticsearch.NewCorpus(&esConfig, cc.Index)
			if err != nil {
				src = corpus.Unavailable(err)
			} else {
				src = esCorpus
			}
			sources = append(sources, termsuggest.NamedCorpus{Name: name, Corpus: src})
		default:
			return nil, fmt.Errorf("unknown corpus type %q", cc.Type)
		}
	}

	if c.Discovery.Root != "" {
		found, err := corpus.Discover(c.Discovery.Root, c.Discovery.Names)
		if err != nil {
			return nil, fmt.Errorf("failed to discover corpora: %w", err)
		}
		sources = append(sources, found...)
	}
	return sources, nil
}
