// Package feedback persists user verdicts on reported clauses and feeds the
// confirmed ones back into the reference corpus.
package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
)

// User verdicts on a reported clause.
const (
	VerdictCorrect       = "correct"
	VerdictFalsePositive = "false_positive"
	VerdictTooStrict     = "too_strict"
	VerdictTooLenient    = "too_lenient"
)

var validVerdicts = map[string]bool{
	VerdictCorrect:       true,
	VerdictFalsePositive: true,
	VerdictTooStrict:     true,
	VerdictTooLenient:    true,
}

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id          TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	category    TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	clause_text TEXT NOT NULL,
	risk_score  INTEGER NOT NULL,
	comment     TEXT,
	synced      INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_verdict ON feedback(verdict, synced);
`

// Entry is one user verdict.
type Entry struct {
	ID         string    `db:"id" json:"id"`
	AnalysisID string    `db:"analysis_id" json:"analysis_id"`
	ChunkID    string    `db:"chunk_id" json:"chunk_id"`
	Category   string    `db:"category" json:"category"`
	Verdict    string    `db:"verdict" json:"verdict"`
	ClauseText string    `db:"clause_text" json:"clause_text"`
	RiskScore  int       `db:"risk_score" json:"risk_score"`
	Comment    string    `db:"comment" json:"comment,omitempty"`
	Synced     bool      `db:"synced" json:"synced"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Stats summarizes accumulated feedback.
type Stats struct {
	Total     int            `json:"total"`
	ByVerdict map[string]int `json:"by_verdict"`
	Unsynced  int            `json:"unsynced"`
}

// ExemplarSink is the corpus surface the sync loop writes to.
type ExemplarSink interface {
	AddVerifiedClause(ctx context.Context, text, category, riskLevel string) error
}

// Store is the feedback database handle.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// Open connects using the configured driver (sqlite3 or postgres).
func Open(cfg config.FeedbackConfig) (*Store, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.StorageError(err, "failed to open feedback store")
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StorageError(err, "failed to migrate feedback schema")
	}
	return &Store{db: db, logger: logging.With("component", "feedback")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Record validates and stores one verdict, assigning it an id.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if !validVerdicts[e.Verdict] {
		return errors.ValidationErrorf("unknown verdict %q", e.Verdict)
	}
	if e.ClauseText == "" || e.Category == "" {
		return errors.ValidationError("feedback requires clause_text and category")
	}

	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO feedback (id, analysis_id, chunk_id, category, verdict, clause_text, risk_score, comment, synced, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`),
		e.ID, e.AnalysisID, e.ChunkID, e.Category, e.Verdict, e.ClauseText, e.RiskScore, e.Comment, e.CreatedAt)
	if err != nil {
		return errors.StorageError(err, "failed to record feedback")
	}

	s.logger.Info("feedback recorded", "verdict", e.Verdict, "category", e.Category)
	return nil
}

// GetStats reports feedback composition.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByVerdict: make(map[string]int)}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT verdict, COUNT(*) AS n, SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END) AS unsynced
		 FROM feedback GROUP BY verdict`)
	if err != nil {
		return stats, errors.StorageError(err, "failed to query feedback stats")
	}
	defer rows.Close()

	for rows.Next() {
		var verdict string
		var n, unsynced int
		if err := rows.Scan(&verdict, &n, &unsynced); err != nil {
			return stats, errors.StorageError(err, "failed to scan feedback stats")
		}
		stats.Total += n
		stats.ByVerdict[verdict] = n
		stats.Unsynced += unsynced
	}
	return stats, rows.Err()
}

// SyncToCorpus pushes unsynced definitive verdicts into the golden
// standards: confirmed detections become risky exemplars and false
// positives become safe ones. Ambivalent verdicts (too_strict,
// too_lenient) stay out of the corpus. Returns the number synced.
func (s *Store) SyncToCorpus(ctx context.Context, sink ExemplarSink) (int, error) {
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(
		`SELECT id, analysis_id, chunk_id, category, verdict, clause_text, risk_score, comment, synced, created_at
		 FROM feedback WHERE synced = 0 AND verdict IN (?, ?) ORDER BY created_at`),
		VerdictCorrect, VerdictFalsePositive)
	if err != nil {
		return 0, errors.StorageError(err, "failed to load unsynced feedback")
	}

	synced := 0
	for _, e := range entries {
		riskLevel := models.ExemplarRisky
		if e.Verdict == VerdictFalsePositive {
			riskLevel = models.ExemplarSafe
		}
		if err := sink.AddVerifiedClause(ctx, e.ClauseText, e.Category, riskLevel); err != nil {
			return synced, err
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE feedback SET synced = 1 WHERE id = ?`), e.ID); err != nil {
			return synced, errors.StorageError(err, "failed to mark feedback synced")
		}
		synced++
	}

	if synced > 0 {
		s.logger.Info("feedback synced to corpus", "count", synced)
	}
	return synced, nil
}
