// Package store persists the knowledge graph in Neo4j: entities,
// relations, chunks, communities, summaries, and the per-series vector
// indexes. It is the only package that writes to the database; build
// and query layers pass rows in and read typed views out.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrUnavailable wraps database failures that survive the driver's own
// retry logic.
var ErrUnavailable = errors.New("store: database unavailable")

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
}

// Store wraps a Neo4j driver scoped to one database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New connects to Neo4j and verifies connectivity before returning.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("store: uri not configured")
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 50
			c.MaxConnectionLifetime = time.Hour
			c.SocketConnectTimeout = 15 * time.Second
			c.MaxTransactionRetryTime = 10 * time.Second
		})
	if err != nil {
		return nil, fmt.Errorf("store: creating driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &Store{driver: driver, database: cfg.Database}, nil
}

// NewFromEnv builds a store from NEO4J_* environment variables. It
// returns (nil, nil) when NEO4J_URI is unset so callers, tests in
// particular, can skip graph work when no database is around.
func NewFromEnv(ctx context.Context) (*Store, error) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		return nil, nil
	}
	return New(ctx, Config{
		URI:      uri,
		Username: os.Getenv("NEO4J_USERNAME"),
		Password: os.Getenv("NEO4J_PASSWORD"),
		Database: os.Getenv("NEO4J_DATABASE"),
	})
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping runs a trivial query to check the connection end to end.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.Read(ctx, "RETURN 1 AS ok", nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
	`CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT rel_id IF NOT EXISTS FOR ()-[r:REL]-() REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT community_scope IF NOT EXISTS FOR (c:Community) REQUIRE (c.series, c.level, c.cid) IS UNIQUE`,
}

// EnsureConstraints installs the unique-id constraints. Failures are
// logged and ignored so older server variants still work; uniqueness is
// then only as good as the MERGE keys.
func (s *Store) EnsureConstraints(ctx context.Context) {
	for _, stmt := range schemaStatements {
		if err := s.runSchema(ctx, stmt); err != nil {
			slog.Warn("store: constraint install skipped", "error", err)
		}
	}
}

// runSchema executes one DDL statement in an auto-commit transaction;
// Neo4j rejects schema commands inside managed transactions.
func (s *Store) runSchema(ctx context.Context, stmt string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.Run(ctx, stmt, nil)
	return err
}

// RunCypher executes an arbitrary statement in its own managed write
// transaction and returns the result rows. It is the escape hatch used
// by community detection and hierarchy wiring.
func (s *Store) RunCypher(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		return nil, err
	}
	return out.([]map[string]any), nil
}

// Read executes a read-only statement in a managed transaction.
func (s *Store) Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		return nil, err
	}
	return out.([]map[string]any), nil
}

func collectRows(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for res.Next(ctx) {
		rows = append(rows, res.Record().AsMap())
	}
	return rows, res.Err()
}

// firstCount extracts the single count column from the first row of a
// RETURN count(...) result. An empty result counts as zero.
func firstCount(rows []map[string]any) int {
	if len(rows) == 0 {
		return 0
	}
	for _, v := range rows[0] {
		return int(asInt64(v))
	}
	return 0
}

// upsertBatchSize bounds UNWIND payloads; larger row sets are split
// into consecutive transactions.
const upsertBatchSize = 2000

// batches yields [start, end) ranges covering n items.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = upsertBatchSize
	}
	var out [][2]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}
