package embed

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists document chunks and their embeddings in SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the vector database at the given path.
// Creates parent directories if they don't exist.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	store := &Store{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// OpenStoreInMemory creates an in-memory store (useful for testing).
func OpenStoreInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	store := &Store{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores one content chunk with its embedding.
func (s *Store) Insert(ctx context.Context, content string, embedding []float64) error {
	encoded, err := encodeVector(embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (content, embedding) VALUES (?, ?)`,
		content, encoded)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// MatchResult is a document chunk scored against a query embedding.
type MatchResult struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Match returns up to count documents whose cosine similarity to the
// query embedding meets the threshold, ordered best first.
func (s *Store) Match(ctx context.Context, query []float64, threshold float64, count int) ([]MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var matches []MatchResult
	for rows.Next() {
		var (
			content string
			blob    []byte
		)
		if err := rows.Scan(&content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		embedding, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}

		similarity := cosineSimilarity(query, embedding)
		if similarity >= threshold {
			matches = append(matches, MatchResult{Content: content, Similarity: similarity})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

func encodeVector(vector []float64) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 8", len(blob))
	}
	vector := make([]float64, len(blob)/8)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// cosineSimilarity returns 0 for mismatched or zero-magnitude vectors
// so they never pass a positive threshold.
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
