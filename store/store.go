// Package store defines the persistence contracts for computed
// relevance scores, search-query tallies and the small amount of global
// key-value state (rebuild progress, authorization tokens, reindex
// cycle counters) the index lifecycle keeps. All writes are independent
// point writes; no implementation needs cross-key transactions.
package store

import "github.com/google/uuid"

// ScoreStore should be implemented by objects that persist relevance
// scores keyed by (document ID, query key).
type ScoreStore interface {
	// Score returns the cached score for a (document, query key)
	// pair, along with a flag indicating whether an entry exists.
	Score(docID uuid.UUID, queryKey string) (float64, bool, error)

	// PutScore creates or replaces the score entry for a
	// (document, query key) pair.
	PutScore(docID uuid.UUID, queryKey string, score float64) error

	// HasAny reports whether at least one score entry exists for the
	// query key across all documents.
	HasAny(queryKey string) (bool, error)

	// DeleteByQuery removes every score entry stored under the query
	// key and returns the number of entries removed.
	DeleteByQuery(queryKey string) (int, error)

	// DeleteAll removes every score entry and returns the number of
	// entries removed.
	DeleteAll() (int, error)
}

// TallyStore should be implemented by objects that count how many times
// each query has been searched for.
type TallyStore interface {
	// Increment adds one to the tally for the query key and returns
	// the updated count.
	Increment(queryKey string) (int, error)

	// Tallies returns the current count for every tracked query key.
	Tallies() (map[string]int, error)

	// DeleteTally removes the tally for the query key. Deleting an
	// absent tally is a no-op.
	DeleteTally(queryKey string) error
}

// KVStore should be implemented by objects providing the global
// key-value configuration storage used for lifecycle bookkeeping.
// Absent keys are not an error: Get reports presence via its second
// return value and callers supply their own defaults.
type KVStore interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)

	// Put creates or replaces the value stored under key.
	Put(key, value string) error

	// Delete removes the value stored under key. Deleting an absent
	// key is a no-op.
	Delete(key string) error
}

// Store aggregates the three persistence surfaces a deployment provides
// from one backend.
type Store interface {
	ScoreStore
	TallyStore
	KVStore
}
