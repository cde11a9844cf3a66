package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/mwiater/modrec/internal/recovery"

	_ "modernc.org/sqlite" // SQLite driver
)

// schema stores each run once and its fits keyed by the recovery cell plus participant.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    seed TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fits (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    repetition INTEGER NOT NULL,
    generating_model TEXT NOT NULL,
    fitting_model TEXT NOT NULL,
    participant TEXT NOT NULL,
    neg_log_likelihood REAL,  -- NULL when no start reached a finite loss
    bic REAL,
    trials INTEGER NOT NULL,
    converged INTEGER NOT NULL,
    warnings TEXT,            -- JSON array
    PRIMARY KEY (run_id, repetition, generating_model, fitting_model, participant)
);

CREATE TABLE IF NOT EXISTS fit_parameters (
    run_id TEXT NOT NULL,
    repetition INTEGER NOT NULL,
    generating_model TEXT NOT NULL,
    fitting_model TEXT NOT NULL,
    participant TEXT NOT NULL,
    name TEXT NOT NULL,
    fitted REAL,
    PRIMARY KEY (run_id, repetition, generating_model, fitting_model, participant, name)
);

CREATE TABLE IF NOT EXISTS true_parameters (
    run_id TEXT NOT NULL,
    repetition INTEGER NOT NULL,
    generating_model TEXT NOT NULL,
    participant TEXT NOT NULL,
    name TEXT NOT NULL,
    value REAL,
    PRIMARY KEY (run_id, repetition, generating_model, participant, name)
);
`

// OpenDB opens (creating if needed) a results database at path.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// WriteSQLite stores a run and all its fits in one transaction.
func WriteSQLite(ctx context.Context, db *sql.DB, runID string, table *recovery.RecoveryTable) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, seed, created_at) VALUES (?, ?, ?)`,
		runID, fmt.Sprintf("%d", table.Seed()), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	fitStmt, err := tx.PrepareContext(ctx, `INSERT INTO fits
        (run_id, repetition, generating_model, fitting_model, participant, neg_log_likelihood, bic, trials, converged, warnings)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fits: %w", err)
	}
	defer fitStmt.Close()

	paramStmt, err := tx.PrepareContext(ctx, `INSERT INTO fit_parameters
        (run_id, repetition, generating_model, fitting_model, participant, name, fitted)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare parameters: %w", err)
	}
	defer paramStmt.Close()

	trueStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO true_parameters
        (run_id, repetition, generating_model, participant, name, value)
        VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare true parameters: %w", err)
	}
	defer trueStmt.Close()

	for _, r := range Flatten(runID, table) {
		warnings, err := json.Marshal(r.Warnings)
		if err != nil {
			return fmt.Errorf("failed to encode warnings: %w", err)
		}
		if _, err := fitStmt.ExecContext(ctx, r.RunID, r.Repetition, r.GeneratingModel, r.FittingModel, r.Participant,
			nullable(r.NegLogLikelihood), nullable(r.BIC), r.Trials, r.Converged, string(warnings)); err != nil {
			return fmt.Errorf("failed to insert fit: %w", err)
		}
		for _, name := range r.Fitted.Names() {
			if _, err := paramStmt.ExecContext(ctx, r.RunID, r.Repetition, r.GeneratingModel, r.FittingModel, r.Participant,
				name, nullable(r.Fitted[name])); err != nil {
				return fmt.Errorf("failed to insert parameter: %w", err)
			}
		}
		for _, name := range r.True.Names() {
			if _, err := trueStmt.ExecContext(ctx, r.RunID, r.Repetition, r.GeneratingModel, r.Participant,
				name, nullable(r.True[name])); err != nil {
				return fmt.Errorf("failed to insert true parameter: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
