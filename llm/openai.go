package llm

import "context"

// openAIProvider implements Provider for the OpenAI API.
//
// Typical models for this system:
//
//	gpt-4o-mini             — extraction and summarization
//	text-embedding-3-large  (3072 dim)
//	text-embedding-3-small  (1536 dim)
//
// API key: set via config or OPENAI_API_KEY env var.
type openAIProvider struct {
	c *client
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &openAIProvider{c: newClient(cfg)}
}

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.c.chat(ctx, p.c.cfg.BaseURL+"/v1/chat/completions", req)
}

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.c.embed(ctx, p.c.cfg.BaseURL+"/v1/embeddings", texts)
}

// openAICompatProvider is the generic provider for any endpoint that
// speaks the OpenAI protocol (vLLM, LM Studio, OpenRouter, ...).
// BaseURL must be set by the caller.
type openAICompatProvider struct {
	c *client
}

// NewOpenAICompat creates a generic OpenAI-compatible provider.
func NewOpenAICompat(cfg Config) Provider {
	return &openAICompatProvider{c: newClient(cfg)}
}

func (p *openAICompatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.c.chat(ctx, p.c.cfg.BaseURL+"/v1/chat/completions", req)
}

func (p *openAICompatProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.c.embed(ctx, p.c.cfg.BaseURL+"/v1/embeddings", texts)
}
