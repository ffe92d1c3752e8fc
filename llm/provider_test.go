package llm

import (
	"fmt"
	"reflect"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantType string
	}{
		{"openai", "*llm.openAIProvider"},
		{"azure", "*llm.azureProvider"},
		{"openai.azure", "*llm.azureProvider"},
		{"gemini", "*llm.geminiProvider"},
		{"ollama", "*llm.ollamaProvider"},
		{"custom", "*llm.openAICompatProvider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := Config{
				Provider: tt.provider,
				Model:    "test-model",
			}
			p, err := NewProvider(cfg)
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			gotType := fmt.Sprintf("%T", p)
			if gotType != tt.wantType {
				t.Errorf("NewProvider(%q) type = %s, want %s", tt.provider, gotType, tt.wantType)
			}
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "doesnotexist", Model: "m"})
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
	want := "unknown llm provider: doesnotexist"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestNewProviderEmpty(t *testing.T) {
	_, err := NewProvider(Config{Model: "m"})
	if err == nil {
		t.Fatal("expected error for empty provider, got nil")
	}
	want := "llm provider not specified"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

// baseURLOf reaches the unexported client config on a provider value.
func baseURLOf(t *testing.T, p Provider) string {
	t.Helper()
	v := reflect.ValueOf(p).Elem()
	c := v.FieldByName("c").Elem()
	return c.FieldByName("cfg").FieldByName("BaseURL").String()
}

func TestDefaultBaseURLs(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
	}{
		{"openai", "https://api.openai.com"},
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai"},
		{"ollama", "http://localhost:11434"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "m"})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", tt.provider, err)
			}
			if got := baseURLOf(t, p); got != tt.wantURL {
				t.Errorf("default BaseURL for %q = %q, want %q", tt.provider, got, tt.wantURL)
			}
		})
	}
}

func TestCustomProviderNoDefaultURL(t *testing.T) {
	p, err := NewProvider(Config{Provider: "custom", Model: "m"})
	if err != nil {
		t.Fatalf("NewProvider(custom): %v", err)
	}
	if got := baseURLOf(t, p); got != "" {
		t.Errorf("custom provider BaseURL = %q, want empty", got)
	}
}

func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999"
	for _, provider := range []string{"openai", "azure", "gemini", "ollama", "custom"} {
		t.Run(provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: provider, Model: "m", BaseURL: customURL})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", provider, err)
			}
			if got := baseURLOf(t, p); got != customURL {
				t.Errorf("provider %q BaseURL = %q, want %q", provider, got, customURL)
			}
		})
	}
}

func TestAzureURLShape(t *testing.T) {
	p := NewAzure(Config{
		Provider:   "azure",
		Model:      "gpt-4o-mini",
		BaseURL:    "https://myres.openai.azure.com/",
		Deployment: "chat-prod",
		APIVersion: "2024-06-01",
	})
	ap := p.(*azureProvider)
	got := ap.url("chat/completions")
	want := "https://myres.openai.azure.com/openai/deployments/chat-prod/chat/completions?api-version=2024-06-01"
	if got != want {
		t.Errorf("azure url = %q\nwant %q", got, want)
	}
}

func TestAzureDeploymentFallsBackToModel(t *testing.T) {
	p := NewAzure(Config{
		Provider: "azure",
		Model:    "text-embedding-3-large",
		BaseURL:  "https://myres.openai.azure.com",
	})
	ap := p.(*azureProvider)
	got := ap.url("embeddings")
	want := "https://myres.openai.azure.com/openai/deployments/text-embedding-3-large/embeddings?api-version=2024-06-01"
	if got != want {
		t.Errorf("azure url = %q\nwant %q", got, want)
	}
}
