// Command graphragd serves the GraphRAG engine over HTTP: series and
// document management, ingest and build pipelines, and the query
// endpoints.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rdahmani/graphrag"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// A local .env feeds the environment overlay during development.
	_ = godotenv.Load()

	cfg := graphrag.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = graphrag.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnv()

	apiKey := os.Getenv("GRAPHRAG_API_KEY")
	corsOrigins := os.Getenv("GRAPHRAG_CORS_ORIGINS")

	engine, err := graphrag.New(context.Background(), cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close(context.Background())

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /series", h.handleCreateSeries)
	mux.HandleFunc("GET /series", h.handleListSeries)
	mux.HandleFunc("DELETE /series/{series}", h.handleDeleteSeries)
	mux.HandleFunc("POST /series/{series}/documents", h.handleUpload)
	mux.HandleFunc("POST /series/{series}/ingest", h.handleIngest)
	mux.HandleFunc("POST /series/{series}/build", h.handleBuild)
	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("GET /search", h.handleSearch)
	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // builds can run for a long time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
