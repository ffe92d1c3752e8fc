package llm

import "context"

// geminiProvider implements Provider for Google's Gemini API through
// its OpenAI-compatible endpoint, which lives under a path that already
// ends in /openai (no /v1 prefix).
//
// Typical models:
//
//	gemini-2.0-flash        — extraction and summarization
//	gemini-embedding-001    (3072 dim)
//
// API key: set via config or GEMINI_API_KEY env var.
type geminiProvider struct {
	c *client
}

// NewGemini creates a provider for Google Gemini.
func NewGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	return &geminiProvider{c: newClient(cfg)}
}

func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.c.chat(ctx, p.c.cfg.BaseURL+"/chat/completions", req)
}

func (p *geminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.c.embed(ctx, p.c.cfg.BaseURL+"/embeddings", texts)
}
