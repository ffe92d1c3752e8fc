package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

// fakeProvider scripts chat and embedding responses for engine tests.
type fakeProvider struct {
	chat  func(req llm.ChatRequest) (*llm.ChatResponse, error)
	embed func(texts []string) ([][]float32, error)
}

func (f *fakeProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.chat == nil {
		return nil, errors.New("no chat scripted")
	}
	return f.chat(req)
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embed == nil {
		return nil, errors.New("no embed scripted")
	}
	return f.embed(texts)
}

func testEngine(provider *fakeProvider) *Engine {
	return NewEngine(nil, provider, provider, tokens.NewBudgeter("openai"), "gpt-test")
}

func TestParsePartial(t *testing.T) {
	p := parsePartial(`{"partial_answer": "Acme a racheté Beta.", "confidence": 0.8, "evidence": ["rachat 2021"]}`)
	if p.Text != "Acme a racheté Beta." || p.Confidence != 0.8 || len(p.Evidence) != 1 {
		t.Errorf("parsed = %+v", p)
	}

	p = parsePartial(`{"answer": "Réponse sous une autre clé.", "confidence": 2.5}`)
	if p.Text != "Réponse sous une autre clé." || p.Confidence != 1.0 {
		t.Errorf("alternate key / clamp: %+v", p)
	}

	p = parsePartial("le modèle a répondu en prose, sans JSON.")
	if p.Text != "le modèle a répondu en prose, sans JSON." || p.Confidence != 0.4 {
		t.Errorf("raw fallback = %+v", p)
	}
}

func TestMapCandidatesSkipsFailures(t *testing.T) {
	provider := &fakeProvider{chat: func(req llm.ChatRequest) (*llm.ChatResponse, error) {
		prompt := req.Messages[0].Content
		switch {
		case strings.Contains(prompt, "résumé un"):
			return nil, errors.New("timeout")
		case strings.Contains(prompt, "résumé deux"):
			return &llm.ChatResponse{
				Content:      `{"partial_answer": "Deux répond.", "confidence": 0.9, "evidence": []}`,
				PromptTokens: 10, CompletionTokens: 5,
			}, nil
		default:
			return &llm.ChatResponse{Content: `{"partial_answer": "", "confidence": 0.0, "evidence": []}`}, nil
		}
	}}
	e := testEngine(provider)

	seeds := []store.Candidate{
		{CID: "c0_comm1", Level: 0, Text: "résumé un"},
		{CID: "c0_comm2", Level: 0, Text: "résumé deux"},
		{CID: "c0_comm3", Level: 0, Text: "résumé hors sujet"},
	}
	partials, usage, warnings := e.mapCandidates(context.Background(), "question ?", seeds, DefaultBudgets().QFSMap)

	if len(partials) != 1 || partials[0].CID != "c0_comm2" {
		t.Fatalf("partials = %+v", partials)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "c0_comm1") {
		t.Errorf("warnings = %v", warnings)
	}
	if usage.Prompt != 10 || usage.Completion != 5 || usage.Total != 15 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestReduceRetriesOnce(t *testing.T) {
	calls := 0
	provider := &fakeProvider{chat: func(llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return &llm.ChatResponse{Content: `{"answer": "Réponse finale.", "used": [], "confidence": 0.7}`}, nil
	}}
	e := testEngine(provider)

	var usage TokenUsage
	answer, used, conf, err := e.reduce(context.Background(), "q", []partial{{CID: "c0_comm1", Text: "p"}}, DefaultBudgets().QFSReduce, &usage)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want one retry", calls)
	}
	if answer != "Réponse finale." || len(used) != 0 || conf != 0.7 {
		t.Errorf("answer = %q, used = %v, conf = %v", answer, used, conf)
	}
}

func TestReduceRawFallback(t *testing.T) {
	provider := &fakeProvider{chat: func(llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "  réponse en prose sans JSON  "}, nil
	}}
	e := testEngine(provider)

	var usage TokenUsage
	answer, used, conf, err := e.reduce(context.Background(), "q", []partial{{CID: "c0_comm1", Text: "p"}}, DefaultBudgets().QFSReduce, &usage)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if answer != "réponse en prose sans JSON" || used != nil || conf != 0.5 {
		t.Errorf("answer = %q, used = %v, conf = %v", answer, used, conf)
	}
}

func TestCitePartials(t *testing.T) {
	partials := []partial{
		{CID: "c0_comm17", Level: 0, Text: "Acme domine le marché. Elle a racheté Beta en 2021."},
		{CID: "c1_comm3", Level: 1, Text: "Communauté financière régionale."},
	}

	cites := citePartials(partials, []string{"c0_comm17@L0", "inconnu"})
	if len(cites) != 1 {
		t.Fatalf("citations = %+v", cites)
	}
	if cites[0].ID != "c0_comm17" || cites[0].Snippet != "Acme domine le marché." {
		t.Errorf("citation = %+v", cites[0])
	}
}

func TestFirstSentenceCap(t *testing.T) {
	long := strings.Repeat("x", 400)
	if got := firstSentence(long, 280); len(got) != 280 {
		t.Errorf("len = %d, want 280", len(got))
	}
	if got := firstSentence("Un fait. Un autre.", 280); got != "Un fait." {
		t.Errorf("first sentence = %q", got)
	}
}

func TestRankCandidates(t *testing.T) {
	qvec := []float32{1, 0}
	cands := []store.Candidate{
		{CID: "far", Level: 0, Text: "sans rapport", Vec: []float32{0, 1}},
		{CID: "near", Level: 0, Text: "aligné", Vec: []float32{1, 0.1}},
	}
	ranked := rankCandidates("question", qvec, cands)
	if ranked[0].CID != "near" {
		t.Errorf("cosine ranking = %v", ranked)
	}

	// Without vectors, keyword overlap decides.
	kw := []store.Candidate{
		{CID: "a", Level: 0, Text: "la communauté parle du rachat de beta"},
		{CID: "b", Level: 0, Text: "chiffres de production"},
	}
	ranked = rankCandidates("qui a organisé le rachat de beta ?", nil, kw)
	if ranked[0].CID != "a" {
		t.Errorf("keyword ranking = %v", ranked)
	}
}
