// Package store persists simulation runs in SQLite: the engine state needed
// to resume a run and its metrics history, one row per step.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/simulation"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when no run matches an id or name.
var ErrNotFound = errors.New("run not found")

// Run describes a saved run without its state.
type Run struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Seed        uint64      `json:"seed"`
	Step        int         `json:"step"`
	Phase       phase.Phase `json:"phase"`
	Agents      int         `json:"agents"`
	Connections int         `json:"connections"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Store is a SQLite-backed run store. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := ensureParent(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores state as a new run and returns its record.
func (s *Store) Save(ctx context.Context, name string, state *simulation.State) (Run, error) {
	if state == nil {
		return Run{}, errors.New("save run: nil state")
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return Run{}, fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	run := describe(state)
	run.ID = uuid.NewString()
	run.Name = name
	run.CreatedAt, run.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, name, seed, step, phase, agents, connections, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, strconv.FormatUint(run.Seed, 10), run.Step, run.Phase.String(),
		run.Agents, run.Connections, string(blob), formatTime(now), formatTime(now))
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	if err := insertSnapshots(ctx, tx, run.ID, state.History); err != nil {
		return Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// Update replaces the state of an existing run and records the snapshots
// it has not seen yet.
func (s *Store) Update(ctx context.Context, id string, state *simulation.State) (Run, error) {
	if state == nil {
		return Run{}, errors.New("update run: nil state")
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return Run{}, fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanRun(tx.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if err != nil {
		return Run{}, err
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(step) FROM snapshots WHERE run_id = ?`, id).Scan(&last); err != nil {
		return Run{}, fmt.Errorf("failed to read last step: %w", err)
	}
	fresh := state.History
	if last.Valid {
		fresh = after(state.History, int(last.Int64))
	}

	run := describe(state)
	run.ID, run.Name, run.CreatedAt = existing.ID, existing.Name, existing.CreatedAt
	run.UpdatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET seed = ?, step = ?, phase = ?, agents = ?, connections = ?, state = ?, updated_at = ?
		WHERE id = ?`,
		strconv.FormatUint(run.Seed, 10), run.Step, run.Phase.String(), run.Agents,
		run.Connections, string(blob), formatTime(run.UpdatedAt), id)
	if err != nil {
		return Run{}, fmt.Errorf("failed to update run: %w", err)
	}
	if err := insertSnapshots(ctx, tx, id, fresh); err != nil {
		return Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// Get returns the record of the run with the given id, or of the most
// recently created run with that name.
func (s *Store) Get(ctx context.Context, ref string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(ctx, ref)
}

// Load returns the record and the saved state of a run.
func (s *Store) Load(ctx context.Context, ref string) (Run, *simulation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.lookup(ctx, ref)
	if err != nil {
		return Run{}, nil, err
	}
	var blob string
	if err := s.db.QueryRowContext(ctx, `SELECT state FROM runs WHERE id = ?`, run.ID).Scan(&blob); err != nil {
		return Run{}, nil, fmt.Errorf("failed to read state: %w", err)
	}
	var state simulation.State
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return Run{}, nil, fmt.Errorf("failed to decode state of run %s: %w", run.ID, err)
	}
	return run, &state, nil
}

// List returns all runs, most recently created first.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// History returns the recorded snapshots of a run in step order.
func (s *Store) History(ctx context.Context, ref string) ([]metrics.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, phase, coherence, entropy, complexity, resonance_bonds, memory_inversions,
		       energy, focus_activation, slow_fast_coupling, pruning_rate, critical_period, connection_count
		FROM snapshots WHERE run_id = ? ORDER BY step`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []metrics.Snapshot
	for rows.Next() {
		var snap metrics.Snapshot
		var phaseName string
		if err := rows.Scan(&snap.Step, &phaseName, &snap.Coherence, &snap.Entropy, &snap.Complexity,
			&snap.ResonanceBonds, &snap.MemoryInversions, &snap.Energy, &snap.FocusActivation,
			&snap.SlowFastCoupling, &snap.PruningRate, &snap.CriticalPeriod, &snap.ConnectionCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if snap.Phase, err = phase.ParsePhase(phaseName); err != nil {
			return nil, fmt.Errorf("snapshot %d of run %s: %w", snap.Step, run.ID, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes a run and its snapshots.
func (s *Store) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, name, seed, step, phase, agents, connections, created_at, updated_at FROM runs`

// lookup resolves ref as an id first, then as a name. The caller holds mu.
func (s *Store) lookup(ctx context.Context, ref string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, ref))
	if !errors.Is(err, ErrNotFound) {
		return run, err
	}
	return scanRun(s.db.QueryRowContext(ctx,
		selectRun+` WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, ref))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var seed, phaseName, created, updated string
	err := row.Scan(&run.ID, &run.Name, &seed, &run.Step, &phaseName,
		&run.Agents, &run.Connections, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return Run{}, fmt.Errorf("run %s: bad seed %q: %w", run.ID, seed, err)
	}
	if run.Phase, err = phase.ParsePhase(phaseName); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Run{}, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return Run{}, fmt.Errorf("run %s: bad updated_at: %w", run.ID, err)
	}
	return run, nil
}

func insertSnapshots(ctx context.Context, tx *sql.Tx, runID string, snaps []metrics.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (run_id, step, phase, coherence, entropy, complexity, resonance_bonds,
		    memory_inversions, energy, focus_activation, slow_fast_coupling, pruning_rate,
		    critical_period, connection_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx, runID, snap.Step, snap.Phase.String(), snap.Coherence,
			snap.Entropy, snap.Complexity, snap.ResonanceBonds, snap.MemoryInversions, snap.Energy,
			snap.FocusActivation, snap.SlowFastCoupling, snap.PruningRate, snap.CriticalPeriod,
			snap.ConnectionCount); err != nil {
			return fmt.Errorf("failed to insert snapshot %d: %w", snap.Step, err)
		}
	}
	return nil
}

func describe(state *simulation.State) Run {
	return Run{
		Seed:        state.Config.Seed,
		Step:        state.Step,
		Phase:       state.Phase,
		Agents:      len(state.Agents),
		Connections: len(state.Connections),
	}
}

// after returns the suffix of snaps with steps greater than step.
func after(snaps []metrics.Snapshot, step int) []metrics.Snapshot {
	for i, s := range snaps {
		if s.Step > step {
			return snaps[i:]
		}
	}
	return nil
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
