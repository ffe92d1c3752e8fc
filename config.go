package graphrag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rdahmani/graphrag/corpus"
	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/query"
	"github.com/rdahmani/graphrag/store"
)

// Config holds all settings for the engine. Zero sections fall back to
// the defaults of the component they configure.
type Config struct {
	// Series is the default series used when an operation is called with
	// an empty series name.
	Series string `json:"series" yaml:"series"`

	Neo4j     store.Config `json:"neo4j" yaml:"neo4j"`
	Chat      llm.Config   `json:"chat" yaml:"chat"`
	Embedding llm.Config   `json:"embedding" yaml:"embedding"`

	Storage  StorageConfig       `json:"storage" yaml:"storage"`
	Chunking corpus.ChunkOptions `json:"chunking" yaml:"chunking"`
	Build    BuildConfig         `json:"build" yaml:"build"`
	Query    QueryConfig         `json:"query" yaml:"query"`
}

// StorageConfig locates the corpus on disk.
type StorageConfig struct {
	Root          string `json:"root" yaml:"root"`
	MaxFileSizeMB int64  `json:"max_file_size_mb" yaml:"max_file_size_mb"`
}

// BuildConfig tunes the knowledge graph build.
type BuildConfig struct {
	MinConf        float64 `json:"min_conf" yaml:"min_conf"`
	Levels         int     `json:"levels" yaml:"levels"`
	Resolution     float64 `json:"resolution" yaml:"resolution"`
	SummaryLevels  []int   `json:"summary_levels" yaml:"summary_levels"`
	Concurrency    int     `json:"concurrency" yaml:"concurrency"`
	TimeoutSeconds int     `json:"timeout_s" yaml:"timeout_s"`
}

// QueryConfig carries the default query knobs.
type QueryConfig struct {
	K       int           `json:"k" yaml:"k"`
	N       int           `json:"n" yaml:"n"`
	Alpha   float64       `json:"alpha" yaml:"alpha"`
	Theta   float64       `json:"theta" yaml:"theta"`
	MaxHops int           `json:"max_hops" yaml:"max_hops"`
	Budgets query.Budgets `json:"budgets" yaml:"budgets"`
}

// DefaultConfig returns working local defaults: Neo4j on bolt, Ollama
// for both providers, corpus under data/.
func DefaultConfig() Config {
	q := query.DefaultOptions()
	return Config{
		Neo4j: store.Config{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Password: "neo4j",
			Database: "neo4j",
		},
		Chat: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Storage: StorageConfig{
			Root:          "data",
			MaxFileSizeMB: 50,
		},
		Chunking: corpus.DefaultChunkOptions(),
		Build: BuildConfig{
			MinConf:       0.35,
			Levels:        3,
			Resolution:    1.2,
			SummaryLevels: []int{0, 1},
			Concurrency:   8,
		},
		Query: QueryConfig{
			K:       q.K,
			N:       q.N,
			Alpha:   q.Alpha,
			Theta:   q.Theta,
			MaxHops: q.MaxHops,
			Budgets: q.Budgets,
		},
	}
}

// LoadConfig reads a YAML or JSON config file, decoding over the
// defaults so omitted fields keep working values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	default:
		return cfg, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config. Set
// variables win over file values, so deployments can keep secrets out
// of the config file.
func (c *Config) ApplyEnv() {
	overlay(&c.Series, "GRAPHRAG_SERIES")
	overlay(&c.Storage.Root, "GRAPHRAG_ROOT")

	overlay(&c.Neo4j.URI, "NEO4J_URI")
	overlay(&c.Neo4j.Username, "NEO4J_USERNAME")
	overlay(&c.Neo4j.Password, "NEO4J_PASSWORD")
	overlay(&c.Neo4j.Database, "NEO4J_DATABASE")

	overlay(&c.Chat.Provider, "GRAPHRAG_CHAT_PROVIDER")
	overlay(&c.Chat.Model, "GRAPHRAG_CHAT_MODEL")
	overlay(&c.Chat.BaseURL, "GRAPHRAG_CHAT_BASE_URL")
	overlay(&c.Chat.APIKey, "GRAPHRAG_CHAT_API_KEY")

	overlay(&c.Embedding.Provider, "GRAPHRAG_EMBED_PROVIDER")
	overlay(&c.Embedding.Model, "GRAPHRAG_EMBED_MODEL")
	overlay(&c.Embedding.BaseURL, "GRAPHRAG_EMBED_BASE_URL")
	overlay(&c.Embedding.APIKey, "GRAPHRAG_EMBED_API_KEY")

	// OPENAI_API_KEY fills any provider key still empty.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Chat.APIKey == "" {
			c.Chat.APIKey = key
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}
}

func overlay(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate rejects configuration the engine cannot run with.
func (c Config) Validate() error {
	if c.Chat.Provider == "" {
		return fmt.Errorf("%w: chat provider required", ErrInvalidConfig)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("%w: storage root required", ErrInvalidConfig)
	}
	if c.Query.Alpha < 0 || c.Query.Alpha > 1 {
		return fmt.Errorf("%w: alpha %v outside [0,1]", ErrInvalidConfig, c.Query.Alpha)
	}
	if c.Query.Theta < 0 || c.Query.Theta > 1 {
		return fmt.Errorf("%w: theta %v outside [0,1]", ErrInvalidConfig, c.Query.Theta)
	}
	for _, b := range []query.Budget{
		c.Query.Budgets.QFSMap, c.Query.Budgets.QFSReduce,
		c.Query.Budgets.Paths, c.Query.Budgets.Vector,
	} {
		if b.MaxItems < 0 || b.Prompt < 0 || b.Response < 0 {
			return fmt.Errorf("%w: negative budget %+v", ErrInvalidConfig, b)
		}
	}
	return nil
}
