package graphrag

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Neo4j.URI != "bolt://localhost:7687" {
		t.Errorf("uri = %q", cfg.Neo4j.URI)
	}
	if cfg.Chat.Provider != "ollama" || cfg.Embedding.Provider != "ollama" {
		t.Errorf("providers = %q, %q", cfg.Chat.Provider, cfg.Embedding.Provider)
	}
	if cfg.Query.K != 12 || cfg.Query.N != 30 || cfg.Query.Alpha != 0.8 {
		t.Errorf("query = %+v", cfg.Query)
	}
	if cfg.Query.Budgets.QFSMap.Prompt != 900 || cfg.Query.Budgets.QFSReduce.MaxItems != 12 {
		t.Errorf("budgets = %+v", cfg.Query.Budgets)
	}
	if cfg.Build.Levels != 3 || cfg.Build.MinConf != 0.35 {
		t.Errorf("build = %+v", cfg.Build)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
series: presse
neo4j:
  uri: neo4j://db.internal:7687
query:
  k: 20
chunking:
  strategy: sentence
  size: 600
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Series != "presse" || cfg.Neo4j.URI != "neo4j://db.internal:7687" {
		t.Errorf("overrides lost: %q, %q", cfg.Series, cfg.Neo4j.URI)
	}
	if cfg.Query.K != 20 {
		t.Errorf("k = %d", cfg.Query.K)
	}
	if cfg.Chunking.Strategy != "sentence" || cfg.Chunking.Size != 600 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	// Omitted fields keep their defaults.
	if cfg.Chat.Model != "llama3.1:8b" || cfg.Query.N != 30 {
		t.Errorf("defaults lost: %q, %d", cfg.Chat.Model, cfg.Query.N)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"storage":{"root":"/srv/corpus"},"query":{"alpha":0.6}}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Root != "/srv/corpus" || cfg.Query.Alpha != 0.6 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Storage.MaxFileSizeMB != 50 {
		t.Errorf("max file size = %d", cfg.Storage.MaxFileSizeMB)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	toml := writeConfig(t, "config.toml", "series = 'x'")
	if _, err := LoadConfig(toml); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("toml err = %v", err)
	}
	broken := writeConfig(t, "config.yaml", "series: [unclosed")
	if _, err := LoadConfig(broken); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("broken yaml err = %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.APIKey = "from-file"

	t.Setenv("NEO4J_URI", "neo4j://env:7687")
	t.Setenv("GRAPHRAG_CHAT_MODEL", "gpt-4o-mini")
	t.Setenv("GRAPHRAG_ROOT", "/var/corpus")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg.ApplyEnv()

	if cfg.Neo4j.URI != "neo4j://env:7687" {
		t.Errorf("uri = %q", cfg.Neo4j.URI)
	}
	if cfg.Chat.Model != "gpt-4o-mini" || cfg.Storage.Root != "/var/corpus" {
		t.Errorf("chat model = %q, root = %q", cfg.Chat.Model, cfg.Storage.Root)
	}
	// OPENAI_API_KEY only fills keys still empty.
	if cfg.Chat.APIKey != "from-file" {
		t.Errorf("chat key = %q", cfg.Chat.APIKey)
	}
	if cfg.Embedding.APIKey != "sk-env" {
		t.Errorf("embedding key = %q", cfg.Embedding.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no chat provider", func(c *Config) { c.Chat.Provider = "" }},
		{"no storage root", func(c *Config) { c.Storage.Root = "" }},
		{"alpha out of range", func(c *Config) { c.Query.Alpha = 1.5 }},
		{"theta out of range", func(c *Config) { c.Query.Theta = -0.1 }},
		{"negative budget", func(c *Config) { c.Query.Budgets.Vector.Prompt = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
