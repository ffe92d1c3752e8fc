package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// azureProvider implements Provider for Azure OpenAI. Azure addresses a
// deployment in the URL instead of a model in the body, authenticates
// with an api-key header, and requires an api-version query parameter.
type azureProvider struct {
	c *client
}

// NewAzure creates a provider for Azure OpenAI. BaseURL is the resource
// endpoint, e.g. https://myresource.openai.azure.com.
func NewAzure(cfg Config) Provider {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-06-01"
	}
	c := newClient(cfg)
	c.auth = func(r *http.Request) {
		if cfg.APIKey != "" {
			r.Header.Set("api-key", cfg.APIKey)
		}
	}
	return &azureProvider{c: c}
}

func (p *azureProvider) url(op string) string {
	deployment := p.c.cfg.Deployment
	if deployment == "" {
		deployment = p.c.cfg.Model
	}
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		strings.TrimRight(p.c.cfg.BaseURL, "/"), deployment, op, p.c.cfg.APIVersion)
}

func (p *azureProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.c.chat(ctx, p.url("chat/completions"), req)
}

func (p *azureProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.c.embed(ctx, p.url("embeddings"), texts)
}
