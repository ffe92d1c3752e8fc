package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rdahmani/graphrag"
)

type handler struct {
	engine graphrag.Engine
}

func newHandler(e graphrag.Engine) *handler {
	return &handler{engine: e}
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graphrag.ErrSeriesNotFound):
		return http.StatusNotFound
	case errors.Is(err, graphrag.ErrEmptyQuery),
		errors.Is(err, graphrag.ErrBudgetExceeded),
		errors.Is(err, graphrag.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, graphrag.ErrStorageUnavailable),
		errors.Is(err, graphrag.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// POST /series
func (h *handler) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	// The body is optional; an empty one means an auto-named series.
	_ = json.NewDecoder(r.Body).Decode(&req)

	name, err := h.engine.CreateSeries(req.Name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("create series error", "error", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"series": name})
}

// GET /series
func (h *handler) handleListSeries(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Series()
	if err != nil {
		writeError(w, statusFor(err), "listing series failed")
		slog.Error("list series error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": list})
}

// DELETE /series/{series}
func (h *handler) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	series := r.PathValue("series")
	if err := h.engine.DeleteSeries(r.Context(), series); err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("delete series error", "series", series, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"series": series, "status": "deleted"})
}

// POST /series/{series}/documents
// Multipart upload; every file part is imported independently.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	series := r.PathValue("series")
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}

	type rejected struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	}
	var (
		accepted []string
		refused  []rejected
	)
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				refused = append(refused, rejected{Filename: fh.Filename, Reason: err.Error()})
				continue
			}
			stored, err := h.engine.ImportReader(series, fh.Filename, f)
			f.Close()
			if err != nil {
				if errors.Is(err, graphrag.ErrSeriesNotFound) {
					writeError(w, http.StatusNotFound, err.Error())
					return
				}
				refused = append(refused, rejected{Filename: fh.Filename, Reason: err.Error()})
				continue
			}
			accepted = append(accepted, stored)
		}
	}
	if accepted == nil && refused == nil {
		writeError(w, http.StatusBadRequest, "no file parts in upload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"series":   series,
		"accepted": accepted,
		"rejected": refused,
	})
}

// POST /series/{series}/ingest
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context30m(r)
	defer cancel()

	series := r.PathValue("series")
	report, err := h.engine.Ingest(ctx, series)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("ingest error", "series", series, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /series/{series}/build
func (h *handler) handleBuild(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context30m(r)
	defer cancel()

	series := r.PathValue("series")
	var req struct {
		MinConf       float64 `json:"min_conf,omitempty"`
		Levels        int     `json:"levels,omitempty"`
		Resolution    float64 `json:"resolution,omitempty"`
		SummaryLevels []int   `json:"summary_levels,omitempty"`
		TimeoutS      int     `json:"timeout_s,omitempty"`
	}
	// The body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	var opts []graphrag.BuildOption
	if req.MinConf > 0 && req.MinConf <= 1 {
		opts = append(opts, graphrag.WithMinConf(req.MinConf))
	}
	if req.Levels > 0 && req.Levels <= 6 {
		opts = append(opts, graphrag.WithLevels(req.Levels))
	}
	if req.Resolution > 0 {
		opts = append(opts, graphrag.WithResolution(req.Resolution))
	}
	if len(req.SummaryLevels) > 0 {
		opts = append(opts, graphrag.WithSummaryLevels(req.SummaryLevels...))
	}
	if req.TimeoutS > 0 {
		opts = append(opts, graphrag.WithBuildTimeout(time.Duration(req.TimeoutS)*time.Second))
	}

	report, err := h.engine.Build(ctx, series, opts...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("build error", "series", series, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /query
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context2m(r)
	defer cancel()

	var req struct {
		Series         string            `json:"series"`
		Question       string            `json:"question"`
		Mode           string            `json:"mode,omitempty"`
		K              int               `json:"k,omitempty"`
		N              int               `json:"n,omitempty"`
		Alpha          float64           `json:"alpha,omitempty"`
		Theta          float64           `json:"theta,omitempty"`
		MaxHops        int               `json:"max_hops,omitempty"`
		Budgets        *graphrag.Budgets `json:"budgets,omitempty"`
		NoPathFallback bool              `json:"no_path_fallback,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	mode, ok := graphrag.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown mode: "+req.Mode)
		return
	}

	// Bound parameters; out-of-range values fall back to defaults.
	var opts []graphrag.QueryOption
	if mode != graphrag.ModeAuto {
		opts = append(opts, graphrag.WithMode(mode))
	}
	if req.K > 0 && req.K <= 100 {
		opts = append(opts, graphrag.WithTopK(req.K))
	}
	if req.N > 0 && req.N <= 200 {
		opts = append(opts, graphrag.WithTopN(req.N))
	}
	if req.Alpha > 0 && req.Alpha <= 1 {
		opts = append(opts, graphrag.WithAlpha(req.Alpha))
	}
	if req.Theta > 0 && req.Theta <= 1 {
		opts = append(opts, graphrag.WithTheta(req.Theta))
	}
	if req.MaxHops > 0 && req.MaxHops <= 6 {
		opts = append(opts, graphrag.WithMaxHops(req.MaxHops))
	}
	if req.Budgets != nil {
		opts = append(opts, graphrag.WithBudgets(*req.Budgets))
	}
	if req.NoPathFallback {
		opts = append(opts, graphrag.WithoutPathFallback())
	}

	answer, err := h.engine.Query(ctx, req.Series, req.Question, opts...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("query error", "series", req.Series, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// GET /search?series=&q=&k=
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context2m(r)
	defer cancel()

	q := r.URL.Query()
	k := 0
	if v := q.Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid k")
			return
		}
		k = n
	}

	result, err := h.engine.Search(ctx, q.Get("series"), q.Get("q"), k)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("search error", "series", q.Get("series"), "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /runs
func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		slog.Error("list runs error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": list})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.engine.Runs().Load(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func context30m(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 30*time.Minute)
}

func context2m(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 2*time.Minute)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
