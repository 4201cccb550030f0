// Package store persists experiment runs, evaluation results and tuning
// trials in SQLite.
package store

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	_ "modernc.org/sqlite"

	"churn/pkg/train"
	"churn/pkg/tune"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	seed        INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	finished_at TEXT,
	best_model  TEXT,
	best_f1     REAL
);

CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	model       TEXT NOT NULL,
	family      TEXT NOT NULL,
	variant     TEXT NOT NULL,
	params      TEXT,
	accuracy    REAL NOT NULL,
	precision   REAL NOT NULL,
	recall      REAL NOT NULL,
	f1          REAL NOT NULL,
	roc_auc     REAL NOT NULL,
	test_size   INTEGER NOT NULL,
	tn          INTEGER NOT NULL DEFAULT 0,
	fp          INTEGER NOT NULL DEFAULT 0,
	fn          INTEGER NOT NULL DEFAULT 0,
	tp          INTEGER NOT NULL DEFAULT 0,
	fit_ms      INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (run_id, model, variant),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS trials (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	family      TEXT NOT NULL,
	trial       INTEGER NOT NULL,
	params      TEXT NOT NULL,
	mean_score  REAL,
	valid       INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Store manages experiment records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Annotate(err, "open db")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "pragma")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "pragma fk")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "migrate")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInfo describes one experiment run.
type RunInfo struct {
	ID         string
	Input      string
	Seed       int64
	CreatedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	BestModel  string
	BestF1     float64
}

// Run records the results of one experiment. It implements train.Sink.
type Run struct {
	store *Store
	ID    string
}

// StartRun inserts a new run and returns a handle bound to its id.
func (s *Store) StartRun(ctx context.Context, input string, seed int64) (*Run, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, input, seed, created_at) VALUES (?, ?, ?, ?)`,
		id, input, seed, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, errors.Annotate(err, "insert run")
	}
	return &Run{store: s, ID: id}, nil
}

// SaveResult upserts res for this run; a repeated model and variant
// overwrites the earlier row, matching the in-memory registry.
func (r *Run) SaveResult(ctx context.Context, res train.EvaluationResult) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO results (run_id, model, family, variant, params, accuracy, precision, recall,
			f1, roc_auc, test_size, tn, fp, fn, tp, fit_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, model, variant) DO UPDATE SET
			family = excluded.family, params = excluded.params,
			accuracy = excluded.accuracy, precision = excluded.precision,
			recall = excluded.recall, f1 = excluded.f1, roc_auc = excluded.roc_auc,
			test_size = excluded.test_size, tn = excluded.tn, fp = excluded.fp,
			fn = excluded.fn, tp = excluded.tp, fit_ms = excluded.fit_ms,
			created_at = excluded.created_at`,
		r.ID, res.Model, res.Family, res.Variant, res.Params,
		res.Accuracy, res.Precision, res.Recall, res.F1, res.ROCAUC,
		res.TestSize, res.Confusion[0][0], res.Confusion[0][1], res.Confusion[1][0], res.Confusion[1][1],
		res.FitDuration.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Annotate(err, "insert result")
	}
	return nil
}

// SaveTrials stores the trials of one tuning search.
func (r *Run) SaveTrials(ctx context.Context, family string, trials []tune.Trial) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "begin tx")
	}
	defer tx.Rollback()

	for _, t := range trials {
		var mean any
		if t.Valid && !math.IsNaN(t.Mean) {
			mean = t.Mean
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trials (run_id, family, trial, params, mean_score, valid) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, family, t.Index, t.Params.String(), mean, t.Valid,
		)
		if err != nil {
			return errors.Annotatef(err, "insert trial %d", t.Index)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Annotate(err, "commit")
	}
	return nil
}

// Finish marks the run complete with the promoted model.
func (r *Run) Finish(ctx context.Context, best train.EvaluationResult) error {
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, best_model = ?, best_f1 = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), best.Model+"/"+best.Variant, best.F1, r.ID,
	)
	if err != nil {
		return errors.Annotate(err, "finish run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundf("run %s", r.ID)
	}
	return nil
}

// GetRun loads the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (RunInfo, error) {
	var (
		info               RunInfo
		created            string
		finished, bestName sql.NullString
		bestF1             sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, input, seed, created_at, finished_at, best_model, best_f1 FROM runs WHERE run_id = ?`, id,
	).Scan(&info.ID, &info.Input, &info.Seed, &created, &finished, &bestName, &bestF1)
	if err == sql.ErrNoRows {
		return RunInfo{}, errors.NotFoundf("run %s", id)
	}
	if err != nil {
		return RunInfo{}, errors.Annotate(err, "query run")
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if finished.Valid {
		info.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	info.BestModel = bestName.String
	info.BestF1 = bestF1.Float64
	return info, nil
}

// Results returns the stored results of a run in registry order: best F1
// first, then best ROC-AUC, then first stored.
func (s *Store) Results(ctx context.Context, runID string) ([]train.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, family, variant, params, accuracy, precision, recall, f1, roc_auc, test_size,
			tn, fp, fn, tp, fit_ms
		 FROM results WHERE run_id = ? ORDER BY f1 DESC, roc_auc DESC, id ASC`, runID,
	)
	if err != nil {
		return nil, errors.Annotate(err, "query results")
	}
	defer rows.Close()

	var out []train.EvaluationResult
	for rows.Next() {
		var (
			r      train.EvaluationResult
			params sql.NullString
			fitMS  int64
		)
		if err := rows.Scan(&r.Model, &r.Family, &r.Variant, &params, &r.Accuracy, &r.Precision,
			&r.Recall, &r.F1, &r.ROCAUC, &r.TestSize,
			&r.Confusion[0][0], &r.Confusion[0][1], &r.Confusion[1][0], &r.Confusion[1][1], &fitMS); err != nil {
			return nil, errors.Annotate(err, "scan result")
		}
		r.Params = params.String
		r.FitDuration = time.Duration(fitMS) * time.Millisecond
		out = append(out, r)
	}
	return out, errors.Trace(rows.Err())
}

// TrialCount returns how many trials were stored for family in a run.
func (s *Store) TrialCount(ctx context.Context, runID, family string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trials WHERE run_id = ? AND family = ?`, runID, family,
	).Scan(&n)
	return n, errors.Trace(err)
}
