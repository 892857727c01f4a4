package persist

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DecisionLog is a sqlite-backed supplemental history of every
// choose/choose_async decision, kept alongside (not instead of) each
// evaluator's own save/restore state — it exists for offline inspection
// and audit, not for reconstructing evaluator internals. Grounded on the
// teacher's sqlite.DB wrapper: a thin struct over *sql.DB with one
// migration slice run on open.
type DecisionLog struct {
	db *sql.DB
}

// decisionLogMigrations is the schema migration run once per open,
// mirroring the teacher's Phase3Migrations() shape (one statement per
// entry, executed in order, idempotent via IF NOT EXISTS).
func decisionLogMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id          TEXT PRIMARY KEY,
			strategy    TEXT NOT NULL,
			eval_method TEXT NOT NULL,
			chooser_arg REAL NOT NULL,
			net_benefit REAL NOT NULL,
			decided_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_strategy ON decisions(strategy)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at)`,
	}
}

// OpenDecisionLog opens (creating if absent) the sqlite database at path
// and applies pending migrations.
func OpenDecisionLog(path string) (*DecisionLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range decisionLogMigrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &DecisionLog{db: db}, nil
}

// Close releases the underlying database handle.
func (l *DecisionLog) Close() error {
	return l.db.Close()
}

// RecordDecision appends one chooser decision to the log.
func (l *DecisionLog) RecordDecision(strategyName, evalMethod string, chooserArg, netBenefit float64) (string, error) {
	id := uuid.NewString()
	_, err := l.db.Exec(`
		INSERT INTO decisions (id, strategy, eval_method, chooser_arg, net_benefit)
		VALUES (?, ?, ?, ?, ?)
	`, id, strategyName, evalMethod, chooserArg, netBenefit)
	return id, err
}

// DecisionRecord is one row of the decision history.
type DecisionRecord struct {
	ID         string
	Strategy   string
	EvalMethod string
	ChooserArg float64
	NetBenefit float64
	DecidedAt  time.Time
}

// LastDecision returns the most recently recorded decision, if any.
func (l *DecisionLog) LastDecision() (DecisionRecord, bool, error) {
	var r DecisionRecord
	var decidedAt string
	err := l.db.QueryRow(`
		SELECT id, strategy, eval_method, chooser_arg, net_benefit, decided_at
		FROM decisions ORDER BY decided_at DESC, rowid DESC LIMIT 1
	`).Scan(&r.ID, &r.Strategy, &r.EvalMethod, &r.ChooserArg, &r.NetBenefit, &decidedAt)
	if err == sql.ErrNoRows {
		return DecisionRecord{}, false, nil
	}
	if err != nil {
		return DecisionRecord{}, false, err
	}
	r.DecidedAt, _ = time.Parse("2006-01-02 15:04:05", decidedAt)
	return r, true, nil
}

// TailDecisions returns the most recent limit decisions, newest first.
func (l *DecisionLog) TailDecisions(limit int) ([]DecisionRecord, error) {
	rows, err := l.db.Query(`
		SELECT id, strategy, eval_method, chooser_arg, net_benefit, decided_at
		FROM decisions ORDER BY decided_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var decidedAt string
		if err := rows.Scan(&r.ID, &r.Strategy, &r.EvalMethod, &r.ChooserArg, &r.NetBenefit, &decidedAt); err != nil {
			return nil, err
		}
		r.DecidedAt, _ = time.Parse("2006-01-02 15:04:05", decidedAt)
		result = append(result, r)
	}
	return result, rows.Err()
}
