// Package vectorstore persists the reference corpus: one prototype seed
// document per target category and the golden-standards exemplar set. The
// store is read-only on the online analysis path; AddVerifiedClause is an
// admin/offline operation.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/embedding"
	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS clauses (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	document   TEXT NOT NULL,
	category   TEXT NOT NULL,
	risk_level TEXT,
	source     TEXT,
	embedding  BLOB NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_clauses_collection ON clauses(collection);
CREATE INDEX IF NOT EXISTS idx_clauses_category ON clauses(collection, category, risk_level);
`

// Metadata carried by each corpus entry.
type Metadata struct {
	Category  string `json:"category"`
	RiskLevel string `json:"risk_level,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Match is one retrieval result. Similarity is 1 - cosine distance;
// callers treat it as monotone preference.
type Match struct {
	Text       string   `json:"text"`
	Metadata   Metadata `json:"metadata"`
	Similarity float64  `json:"similarity"`
}

// PrototypeMatch is a prototype-collection result.
type PrototypeMatch struct {
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

// Stats summarizes the golden-standards collection.
type Stats struct {
	TotalClauses int            `json:"total_clauses"`
	ByCategory   map[string]int `json:"by_category"`
	ByRiskLevel  map[string]int `json:"by_risk_level"`
}

// Store is the sqlite-backed corpus handle. Embeddings live inline as
// float32 blobs; ranking happens in-process, which is comfortably fast at
// reference-corpus scale (hundreds of exemplars).
type Store struct {
	db       *sqlx.DB
	embedder embedding.Service

	goldenCollection    string
	prototypeCollection string
	seeds               map[string]string
	logger              *logging.Logger
}

// Open opens (or creates) the corpus database and ensures the prototype
// collection is seeded.
func Open(cfg config.VectorDBConfig, embedder embedding.Service) (*Store, error) {
	db, err := sqlx.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.StorageError(err, "failed to open vector store")
	}
	// sqlite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StorageError(err, "failed to migrate vector store schema")
	}

	s := &Store{
		db:                  db,
		embedder:            embedder,
		goldenCollection:    cfg.GoldenCollection,
		prototypeCollection: cfg.PrototypeCollection,
		seeds:               cfg.PrototypeSeeds,
		logger:              logging.With("component", "vectorstore"),
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

type clauseRow struct {
	ID        string         `db:"id"`
	Document  string         `db:"document"`
	Category  string         `db:"category"`
	RiskLevel sql.NullString `db:"risk_level"`
	Source    sql.NullString `db:"source"`
	Embedding []byte         `db:"embedding"`
}

// QueryPrototypes returns the top-k prototype categories by similarity to
// text. An empty prototype collection auto-initializes from the configured
// seed documents; if no seeds are configured the empty result is returned
// as-is (not an error).
func (s *Store) QueryPrototypes(ctx context.Context, text string, k int) ([]PrototypeMatch, error) {
	if err := s.ensurePrototypes(ctx); err != nil {
		return nil, err
	}

	rows, err := s.selectRows(ctx, s.prototypeCollection, "", "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	ranked := rankRows(rows, queryVec)
	if k > len(ranked) {
		k = len(ranked)
	}

	out := make([]PrototypeMatch, 0, k)
	for _, m := range ranked[:k] {
		out = append(out, PrototypeMatch{Category: m.Metadata.Category, Similarity: m.Similarity})
	}
	return out, nil
}

// QueryCategory returns the top-k golden-standard exemplars for a category,
// optionally filtered by risk level. Filters are ANDed.
func (s *Store) QueryCategory(ctx context.Context, text, category, riskLevel string, k int) ([]Match, error) {
	rows, err := s.selectRows(ctx, s.goldenCollection, category, riskLevel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	ranked := rankRows(rows, queryVec)
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k], nil
}

// AddVerifiedClause appends a user-verified clause to the golden standards.
// Not called on the online analysis path.
func (s *Store) AddVerifiedClause(ctx context.Context, text, category, riskLevel string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	id := fmt.Sprintf("verified_%s", uuid.NewString()[:8])
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO clauses (id, collection, document, category, risk_level, source, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.goldenCollection, text, category, riskLevel, "user_feedback_sync", encodeVector(vec))
	if err != nil {
		return errors.StorageError(err, "failed to add verified clause")
	}

	s.logger.Info("added verified clause", "id", id, "category", category, "risk_level", riskLevel)
	return nil
}

// AddExemplar inserts a labeled exemplar; used by corpus building and tests.
func (s *Store) AddExemplar(ctx context.Context, id, text, category, riskLevel, source string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO clauses (id, collection, document, category, risk_level, source, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.goldenCollection, text, category, riskLevel, source, encodeVector(vec))
	if err != nil {
		return errors.StorageError(err, "failed to add exemplar")
	}
	return nil
}

// GetStats reports corpus composition for the admin surface.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByCategory:  make(map[string]int),
		ByRiskLevel: make(map[string]int),
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT category, COALESCE(risk_level, '') AS risk_level, COUNT(*) AS n
		 FROM clauses WHERE collection = ? GROUP BY category, risk_level`,
		s.goldenCollection)
	if err != nil {
		return stats, errors.StorageError(err, "failed to query corpus stats")
	}
	defer rows.Close()

	for rows.Next() {
		var category, riskLevel string
		var n int
		if err := rows.Scan(&category, &riskLevel, &n); err != nil {
			return stats, errors.StorageError(err, "failed to scan corpus stats")
		}
		stats.TotalClauses += n
		stats.ByCategory[category] += n
		if riskLevel != "" {
			stats.ByRiskLevel[riskLevel] += n
		}
	}
	return stats, rows.Err()
}

// ensurePrototypes seeds the prototype collection on first use.
func (s *Store) ensurePrototypes(ctx context.Context) error {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM clauses WHERE collection = ?`, s.prototypeCollection); err != nil {
		return errors.StorageError(err, "failed to count prototypes")
	}
	if n > 0 || len(s.seeds) == 0 {
		return nil
	}

	s.logger.Warn("prototype collection empty, seeding", "count", len(s.seeds))
	for category, doc := range s.seeds {
		vec, err := s.embedder.Embed(ctx, doc)
		if err != nil {
			return err
		}
		id := "prototype_" + slugify(category)
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO clauses (id, collection, document, category, source, embedding)
			 VALUES (?, ?, ?, ?, 'seed', ?)`,
			id, s.prototypeCollection, doc, category, encodeVector(vec)); err != nil {
			return errors.StorageError(err, "failed to seed prototype")
		}
	}
	return nil
}

func (s *Store) selectRows(ctx context.Context, collection, category, riskLevel string) ([]clauseRow, error) {
	query := `SELECT id, document, category, risk_level, source, embedding FROM clauses WHERE collection = ?`
	args := []any{collection}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if riskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, riskLevel)
	}

	var rows []clauseRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.StorageError(err, "vector store query failed")
	}
	return rows, nil
}

func rankRows(rows []clauseRow, queryVec []float32) []Match {
	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		vec := decodeVector(r.Embedding)
		matches = append(matches, Match{
			Text: r.Document,
			Metadata: Metadata{
				Category:  r.Category,
				RiskLevel: r.RiskLevel.String,
				Source:    r.Source.String,
			},
			Similarity: embedding.CosineSimilarity(queryVec, vec),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}

func slugify(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ', r == '-':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
