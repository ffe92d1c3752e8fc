// Package runs journals build executions: one JSON file per run with
// per-step status and timings, so the HTTP surface can answer "what
// happened to that build" after the fact.
package runs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// StepState records one pipeline step of a run.
type StepState struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Ms     int64  `json:"ms"`
	Error  string `json:"error,omitempty"`
}

// RunState is the persisted view of one run.
type RunState struct {
	RunID      string               `json:"run_id"`
	Series     string               `json:"series"`
	Pipeline   string               `json:"pipeline"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Status     string               `json:"status"`
	Error      string               `json:"error,omitempty"`
	Steps      map[string]StepState `json:"steps"`
}

// Journal stores run files under one directory.
type Journal struct {
	dir string
}

// NewJournal roots the journal at <root>/runs.
func NewJournal(root string) *Journal {
	return &Journal{dir: filepath.Join(root, "runs")}
}

// newRunID builds ids like gb:<series>:<8 hex>.
func newRunID(series string) string {
	u := uuid.New()
	return fmt.Sprintf("gb:%s:%s", series, hex.EncodeToString(u[:4]))
}

// Run is a live handle on one journaled execution.
type Run struct {
	j *Journal

	mu      sync.Mutex
	state   RunState
	started map[string]time.Time
}

// Start opens a new run and persists its initial state.
func (j *Journal) Start(series, pipeline string) (*Run, error) {
	r := &Run{
		j: j,
		state: RunState{
			RunID:     newRunID(series),
			Series:    series,
			Pipeline:  pipeline,
			StartedAt: time.Now().UTC(),
			Status:    StatusRunning,
			Steps:     map[string]StepState{},
		},
		started: map[string]time.Time{},
	}
	if err := j.save(r.state); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the run identifier.
func (r *Run) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RunID
}

// StartStep marks a step running.
func (r *Run) StartStep(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[name] = time.Now()
	r.state.Steps[name] = StepState{Name: name, Status: StatusRunning}
	r.persistLocked()
}

// FinishStep marks a step ok or failed with its elapsed milliseconds.
func (r *Run) FinishStep(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step := StepState{Name: name, Status: StatusOK}
	if begun, ok := r.started[name]; ok {
		step.Ms = time.Since(begun).Milliseconds()
	}
	if err != nil {
		step.Status = StatusFailed
		step.Error = err.Error()
	}
	r.state.Steps[name] = step
	r.persistLocked()
}

// Finish closes the run. A nil error marks it ok.
func (r *Run) Finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.state.FinishedAt = &now
	r.state.Status = StatusOK
	if err != nil {
		r.state.Status = StatusFailed
		r.state.Error = err.Error()
	}
	r.persistLocked()
}

func (r *Run) persistLocked() {
	// Journal failures must not break the build they describe.
	_ = r.j.save(r.state)
}

func (j *Journal) save(state RunState) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("runs: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("runs: encode %s: %w", state.RunID, err)
	}
	path := filepath.Join(j.dir, fileName(state.RunID))
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("runs: write %s: %w", state.RunID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("runs: write %s: %w", state.RunID, err)
	}
	return nil
}

// fileName flattens the id's colons for the filesystem.
func fileName(id string) string {
	return strings.ReplaceAll(id, ":", "_") + ".json"
}

// List returns every recorded run, most recent first.
func (j *Journal) List() ([]RunState, error) {
	entries, err := os.ReadDir(j.dir)
	if os.IsNotExist(err) {
		return []RunState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runs: list: %w", err)
	}
	out := make([]RunState, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(j.dir, e.Name()))
		if err != nil {
			continue
		}
		var state RunState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out, nil
}

// Load returns one run by id.
func (j *Journal) Load(id string) (*RunState, error) {
	data, err := os.ReadFile(filepath.Join(j.dir, fileName(id)))
	if err != nil {
		return nil, fmt.Errorf("runs: load %s: %w", id, err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("runs: load %s: %w", id, err)
	}
	return &state, nil
}
