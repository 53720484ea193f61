package benchmark

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	dataset         TEXT NOT NULL,
	objective       TEXT NOT NULL,
	solver          TEXT NOT NULL,
	variant         TEXT NOT NULL,
	params          TEXT NOT NULL,
	device          TEXT NOT NULL,
	benchmark       INTEGER NOT NULL,
	workers         INTEGER NOT NULL,
	train_accuracy  REAL NOT NULL,
	test_accuracy   REAL NOT NULL,
	n_train         INTEGER NOT NULL,
	n_test          INTEGER NOT NULL,
	train_loss      REAL NOT NULL,
	epochs          INTEGER NOT NULL,
	runs            INTEGER NOT NULL,
	setup_ns        INTEGER NOT NULL,
	run_ns          INTEGER NOT NULL,
	timestamp       TEXT NOT NULL
)`

// timestampLayout sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger keeps every run in a sqlite database.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens or creates the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create ledger schema in %s", path)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Save inserts the results in one transaction.
func (l *Ledger) Save(ctx context.Context, results []Result) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO runs VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for _, r := range results {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return errors.Wrapf(err, "encode params of %s", r.RunID)
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.Dataset, r.Objective, r.Solver, r.Variant, string(params),
			r.Device, r.Benchmark, r.Workers,
			r.TrainAccuracy, r.TestAccuracy, r.NTrain, r.NTest, r.TrainLoss, r.Epochs, r.Runs,
			int64(r.SetupDuration), int64(r.RunDuration), r.Timestamp.UTC().Format(timestampLayout),
		); err != nil {
			return errors.Wrapf(err, "insert %s", r.RunID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// List returns the most recent runs first, at most limit of them when limit
// is positive.
func (l *Ledger) List(ctx context.Context, limit int) ([]Result, error) {
	query := `SELECT run_id, dataset, objective, solver, variant, params, device, benchmark,
		workers, train_accuracy, test_accuracy, n_train, n_test, train_loss, epochs, runs,
		setup_ns, run_ns, timestamp FROM runs ORDER BY timestamp DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var params, ts string
		var setup, run int64
		if err := rows.Scan(&r.RunID, &r.Dataset, &r.Objective, &r.Solver, &r.Variant, &params,
			&r.Device, &r.Benchmark, &r.Workers, &r.TrainAccuracy, &r.TestAccuracy,
			&r.NTrain, &r.NTest, &r.TrainLoss, &r.Epochs, &r.Runs, &setup, &run, &ts); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, errors.Wrapf(err, "decode params of %s", r.RunID)
		}
		r.SetupDuration, r.RunDuration = time.Duration(setup), time.Duration(run)
		if r.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, errors.Wrapf(err, "parse timestamp of %s", r.RunID)
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}
