// Package memory persists per-profile memories in SQLite and retrieves
// them by embedding similarity. Embeddings are computed through an
// injected Embedder and stored alongside each row, so retrieval needs no
// external vector database.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/m-mizutani/vitalog"
)

// DefaultDimension is the embedding dimension used unless overridden.
const DefaultDimension = 256

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	importance INTEGER NOT NULL,
	embedding  TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_profile ON memories (profile_id);
`

// Embedder computes embedding vectors for texts. The openai client
// satisfies this interface.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

// Store is a SQLite-backed memory store.
type Store struct {
	db        *sql.DB
	embedder  Embedder
	dimension int
}

// Option configures a Store.
type Option func(*Store)

// WithDimension sets the embedding dimension.
func WithDimension(dimension int) Option {
	return func(s *Store) {
		s.dimension = dimension
	}
}

// New opens (or creates) the SQLite database at dbPath and prepares the
// schema.
func New(ctx context.Context, dbPath string, embedder Embedder, options ...Option) (*Store, error) {
	store := &Store{
		embedder:  embedder,
		dimension: DefaultDimension,
	}
	for _, option := range options {
		option(store)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to prepare schema", goerr.V("path", dbPath))
	}
	store.db = db

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store embeds the record's content and inserts it for the profile.
func (s *Store) Store(ctx context.Context, profileID string, rec vitalog.MemoryRecord) (*vitalog.Memory, error) {
	embeddings, err := s.embedder.GenerateEmbedding(ctx, s.dimension, []string{rec.Content})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory content")
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.New("embedder returned no vector for memory content")
	}
	vector, err := json.Marshal(embeddings[0])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode embedding")
	}

	m := &vitalog.Memory{
		ID:         uuid.New().String(),
		ProfileID:  profileID,
		Title:      rec.Title,
		Content:    rec.Content,
		Kind:       rec.Kind,
		Importance: rec.Importance,
		CreatedAt:  time.Now(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, profile_id, title, content, kind, importance, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProfileID, m.Title, m.Content, m.Kind, m.Importance, string(vector), m.CreatedAt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert memory",
			goerr.V("profile_id", profileID))
	}

	return m, nil
}

// Search embeds the query and returns the profile's memories whose cosine
// similarity meets the threshold, best match first, at most limit rows.
func (s *Store) Search(ctx context.Context, profileID, query string, threshold float64, limit int) ([]vitalog.Memory, error) {
	embeddings, err := s.embedder.GenerateEmbedding(ctx, s.dimension, []string{query})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.New("embedder returned no vector for search query")
	}
	queryVector := embeddings[0]

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, kind, importance, embedding, created_at
		 FROM memories WHERE profile_id = ?`, profileID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories",
			goerr.V("profile_id", profileID))
	}
	defer rows.Close()

	var matches []vitalog.Memory
	for rows.Next() {
		var m vitalog.Memory
		var encoded string
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &m.Kind, &m.Importance, &encoded, &m.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}
		m.ProfileID = profileID

		var vector []float64
		if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
			return nil, goerr.Wrap(err, "failed to decode embedding", goerr.V("id", m.ID))
		}

		m.Similarity = cosineSimilarity(queryVector, vector)
		if m.Similarity >= threshold {
			matches = append(matches, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory rows")
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
