// Package controlplane implements the HTTP control-plane façade: a
// SQLite-backed workload store, a trivial round-robin scheduler dialing
// worker agents over schedgrpc, and a status broker fanning out lifecycle
// transitions to SSE subscribers.
package controlplane

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rik-org/riklet/internal/model"
)

const createWorkloadsTable = `
CREATE TABLE IF NOT EXISTS workloads (
    name            TEXT NOT NULL,
    namespace       TEXT NOT NULL,
    kind            TEXT NOT NULL,
    definition_json TEXT NOT NULL,
    created_at      DATETIME NOT NULL,
    PRIMARY KEY (namespace, name)
)`

// ErrNotFound is returned when a workload is not found.
var ErrNotFound = errors.New("workload not found")

// ErrConflict is returned when a workload with the same (namespace, name)
// already exists.
var ErrConflict = errors.New("workload already exists")

// WorkloadRecord is a persisted WorkloadDefinition, as named (but not
// otherwise specified) by the control-plane component.
type WorkloadRecord struct {
	Name       string    `json:"name"`
	Namespace  string    `json:"namespace"`
	Kind       string    `json:"kind"`
	Definition string    `json:"definition_json"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists WorkloadRecords in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates the workloads
// table if it does not already exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createWorkloadsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create workloads table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Create persists def under the given namespace. It returns ErrConflict if
// a record with the same (namespace, name) already exists.
func (s *Store) Create(ctx context.Context, namespace string, def model.WorkloadDefinition) (*WorkloadRecord, error) {
	if _, err := s.Get(ctx, namespace, def.Name); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	body, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}

	rec := &WorkloadRecord{
		Name:       def.Name,
		Namespace:  namespace,
		Kind:       def.Kind,
		Definition: string(body),
		CreatedAt:  time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workloads (name, namespace, kind, definition_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Name, rec.Namespace, rec.Kind, rec.Definition, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workload: %w", err)
	}
	return rec, nil
}

// Get retrieves a single workload by namespace and name.
func (s *Store) Get(ctx context.Context, namespace, name string) (*WorkloadRecord, error) {
	rec := &WorkloadRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, namespace, kind, definition_json, created_at
		FROM workloads WHERE namespace = ? AND name = ?`, namespace, name,
	).Scan(&rec.Name, &rec.Namespace, &rec.Kind, &rec.Definition, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workload: %w", err)
	}
	return rec, nil
}

// List returns every workload record in namespace, ordered by creation time
// descending.
func (s *Store) List(ctx context.Context, namespace string) ([]*WorkloadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, namespace, kind, definition_json, created_at
		FROM workloads WHERE namespace = ? ORDER BY created_at DESC`, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list workloads: %w", err)
	}
	defer rows.Close()

	var records []*WorkloadRecord
	for rows.Next() {
		rec := &WorkloadRecord{}
		if err := rows.Scan(&rec.Name, &rec.Namespace, &rec.Kind, &rec.Definition, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workload: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workloads: %w", err)
	}
	return records, nil
}
