package kg

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rdahmani/graphrag/llm"
	"github.com/rdahmani/graphrag/store"
	"github.com/rdahmani/graphrag/tokens"
)

const (
	summaryMembersBudget = 1000
	summaryPromptBudget  = 1200
)

// Summarizer writes a natural-language summary for every community at
// the chosen levels. Summaries are what the global query mode searches
// over, so each one should read as a standalone description of its
// community.
type Summarizer struct {
	Store    *store.Store
	Provider llm.Provider
	Budgeter *tokens.Budgeter
	Model    string

	MaxMembers int
	Workers    int
}

func NewSummarizer(st *store.Store, provider llm.Provider, budgeter *tokens.Budgeter, model string) *Summarizer {
	return &Summarizer{
		Store:      st,
		Provider:   provider,
		Budgeter:   budgeter,
		Model:      model,
		MaxMembers: defaultMaxMember,
		Workers:    defaultWorkers,
	}
}

// Summary is the persisted artifact for one community.
type Summary struct {
	CommunityID string `json:"community_id"`
	Level       int    `json:"level"`
	Kind        string `json:"kind"`
	Text        string `json:"text"`
	Tokens      int    `json:"tokens"`
}

// Run summarizes every community at the given levels, overwriting any
// previous summary. A failed community is skipped with a warning; the
// rest proceed. Artifacts come back sorted by (level, community id).
func (s *Summarizer) Run(ctx context.Context, series string, levels []int) ([]Summary, []string, error) {
	comms, err := s.Store.Communities(ctx, series, levels)
	if err != nil {
		return nil, nil, fmt.Errorf("list communities: %w", err)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		artifacts []Summary
		warnings  []string
	)
	sem := make(chan struct{}, s.Workers)

	for _, comm := range comms {
		comm := comm
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			artifact, warn := s.summarizeOne(ctx, series, comm)
			mu.Lock()
			defer mu.Unlock()
			if warn != "" {
				warnings = append(warnings, warn)
				return
			}
			artifacts = append(artifacts, artifact)
		}()
	}
	wg.Wait()

	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].Level != artifacts[j].Level {
			return artifacts[i].Level < artifacts[j].Level
		}
		return artifacts[i].CommunityID < artifacts[j].CommunityID
	})
	sort.Strings(warnings)
	return artifacts, warnings, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, series string, comm store.Candidate) (Summary, string) {
	members, err := s.Store.Members(ctx, series, comm.Level, comm.CID, s.MaxMembers)
	if err != nil {
		return Summary{}, fmt.Sprintf("summarize %s: %v", comm.CID, err)
	}
	if len(members) == 0 {
		return Summary{}, fmt.Sprintf("summarize %s: no members", comm.CID)
	}

	prompt := llm.RenderTemplate(summaryPrompt, map[string]string{
		"level":   strconv.Itoa(comm.Level),
		"members": s.Budgeter.Fit(membersBlob(members), summaryMembersBudget),
	})
	prompt = s.Budgeter.Fit(prompt, summaryPromptBudget)

	resp, err := s.Provider.Chat(ctx, llm.ChatRequest{
		Model:    s.Model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Summary{}, fmt.Sprintf("summarize %s: %v", comm.CID, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return Summary{}, fmt.Sprintf("summarize %s: empty summary", comm.CID)
	}

	if err := s.Store.SaveSummary(ctx, series, comm.Level, comm.CID, text); err != nil {
		return Summary{}, fmt.Sprintf("summarize %s: %v", comm.CID, err)
	}
	return Summary{
		CommunityID: comm.CID,
		Level:       comm.Level,
		Kind:        "summary",
		Text:        text,
		Tokens:      s.Budgeter.Count(text),
	}, ""
}

// membersBlob renders members as one bullet per entity, most connected
// first, which is the order Members returns.
func membersBlob(members []store.Member) string {
	lines := make([]string, 0, len(members))
	for _, m := range members {
		desc := strings.TrimSpace(m.Desc)
		if desc == "" {
			desc = "(sans description)"
		}
		lines = append(lines, fmt.Sprintf("- %s [%s]: %s", m.Name, m.Type, desc))
	}
	return strings.Join(lines, "\n")
}
