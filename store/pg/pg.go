// Package pg provides a PostgreSQL-backed implementation of the store
// interfaces. Every operation is an independent point write or read;
// the schema keeps the historical `_fss_` key prefixes so entries stay
// recognizable when inspecting the database directly.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/findingsimple/simple-search/store"
)

const (
	relevancePrefix = "_fss_relevance_"
	tallyPrefix     = "_fss_search_tally_"

	opTimeout = 100 * time.Millisecond
)

var (
	upsertScoreQuery = `
					INSERT INTO relevance_scores (doc_id, query_key, score)
					VALUES ($1, $2, $3)
					ON CONFLICT (doc_id, query_key)
					DO UPDATE SET score=$3
					`
	findScoreQuery   = "SELECT score FROM relevance_scores WHERE doc_id=$1 AND query_key=$2"
	anyScoreQuery    = "SELECT EXISTS (SELECT 1 FROM relevance_scores WHERE query_key=$1)"
	deleteByKeyQuery = "DELETE FROM relevance_scores WHERE query_key=$1"
	deleteAllQuery   = "DELETE FROM relevance_scores"

	upsertTallyQuery = `
					INSERT INTO search_tallies (query_key, tally)
					VALUES ($1, 1)
					ON CONFLICT (query_key)
					DO UPDATE SET tally=search_tallies.tally + 1
					RETURNING tally
					`
	listTalliesQuery = "SELECT query_key, tally FROM search_tallies WHERE query_key LIKE $1"
	deleteTallyQuery = "DELETE FROM search_tallies WHERE query_key=$1"

	upsertOptionQuery = `
					INSERT INTO search_options (name, value)
					VALUES ($1, $2)
					ON CONFLICT (name)
					DO UPDATE SET value=$2
					`
	findOptionQuery   = "SELECT value FROM search_options WHERE name=$1"
	deleteOptionQuery = "DELETE FROM search_options WHERE name=$1"
)

// Static and compile-time check to ensure PostgresStore implements the
// aggregate store.Store interface.
var _ store.Store = (*PostgresStore)(nil)

// PostgresStore persists scores, tallies and key-value state in a
// PostgreSQL instance.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a PostgresStore connected to the instance
// described by the dsn.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{db}, nil
}

// Close terminates the connection to the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Score returns the cached score for a (document, query key) pair.
func (s *PostgresStore) Score(docID uuid.UUID, queryKey string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var score float64

	err := s.db.QueryRowContext(
		ctx, findScoreQuery, docID, relevancePrefix+queryKey,
	).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("score: %w", err)
	}

	return score, true, nil
}

// PutScore creates or replaces the score entry for a (document, query
// key) pair.
func (s *PostgresStore) PutScore(docID uuid.UUID, queryKey string, score float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(
		ctx, upsertScoreQuery, docID, relevancePrefix+queryKey, score,
	); err != nil {
		return fmt.Errorf("put score: %w", err)
	}

	return nil
}

// HasAny reports whether at least one score entry exists for the query
// key.
func (s *PostgresStore) HasAny(queryKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool

	err := s.db.QueryRowContext(ctx, anyScoreQuery, relevancePrefix+queryKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has any: %w", err)
	}

	return exists, nil
}

// DeleteByQuery removes every score entry stored under the query key.
func (s *PostgresStore) DeleteByQuery(queryKey string) (int, error) {
	return s.deleteScores(deleteByKeyQuery, relevancePrefix+queryKey)
}

// DeleteAll removes every score entry.
func (s *PostgresStore) DeleteAll() (int, error) {
	return s.deleteScores(deleteAllQuery)
}

func (s *PostgresStore) deleteScores(query string, args ...interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete scores: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete scores: %w", err)
	}

	return int(deleted), nil
}

// Increment adds one to the tally for the query key.
func (s *PostgresStore) Increment(queryKey string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var tally int

	err := s.db.QueryRowContext(ctx, upsertTallyQuery, tallyPrefix+queryKey).Scan(&tally)
	if err != nil {
		return 0, fmt.Errorf("increment tally: %w", err)
	}

	return tally, nil
}

// Tallies returns the current count for every tracked query key.
func (s *PostgresStore) Tallies() (map[string]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, listTalliesQuery, tallyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("tallies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tallies := make(map[string]int)

	for rows.Next() {
		var (
			key   string
			tally int
		)

		if err := rows.Scan(&key, &tally); err != nil {
			return nil, fmt.Errorf("tallies: %w", err)
		}

		tallies[strings.TrimPrefix(key, tallyPrefix)] = tally
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tallies: %w", err)
	}

	return tallies, nil
}

// DeleteTally removes the tally for the query key.
func (s *PostgresStore) DeleteTally(queryKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, deleteTallyQuery, tallyPrefix+queryKey); err != nil {
		return fmt.Errorf("delete tally: %w", err)
	}

	return nil
}

// Get returns the value stored under key and whether it exists.
func (s *PostgresStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var value string

	err := s.db.QueryRowContext(ctx, findOptionQuery, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get option: %w", err)
	}

	return value, true, nil
}

// Put creates or replaces the value stored under key.
func (s *PostgresStore) Put(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, upsertOptionQuery, key, value); err != nil {
		return fmt.Errorf("put option: %w", err)
	}

	return nil
}

// Delete removes the value stored under key.
func (s *PostgresStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, deleteOptionQuery, key); err != nil {
		return fmt.Errorf("delete option: %w", err)
	}

	return nil
}
