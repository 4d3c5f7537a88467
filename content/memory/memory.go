// Package memory provides an in-memory content.Store backed by a
// mem-only bleve index for full-text candidate matching. It stands in
// for the hosting platform's own document storage in tests and
// single-process deployments.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"

	"github.com/findingsimple/simple-search/content"
)

// Size of each page of bleve results fetched while collecting
// candidate IDs.
const batchSize = 50

// Static and compile-time check to ensure InMemoryStore implements
// content.Store.
var _ content.Store = (*InMemoryStore)(nil)

type bleveDoc struct {
	Title string
	Body  string
}

// InMemoryStore is a content.Store implementation that keeps documents
// in a map and catalogues them in an in-memory bleve index.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*content.Document
	idx  bleve.Index
}

// NewInMemoryStore instantiates and returns an in-memory content store.
func NewInMemoryStore() (*InMemoryStore, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}

	return &InMemoryStore{
		docs: make(map[string]*content.Document),
		idx:  idx,
	}, nil
}

// Close releases the resources held by the underlying bleve index.
func (s *InMemoryStore) Close() error {
	return s.idx.Close()
}

// Upsert adds a new document or replaces an existing one.
func (s *InMemoryStore) Upsert(doc *content.Document) error {
	if doc.ID == uuid.Nil {
		return fmt.Errorf("upsert: %w", content.ErrMissingDocID)
	}

	dCopy := copyDoc(doc)
	key := dCopy.ID.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.idx.Index(key, bleveDoc{
		Title: dCopy.Title,
		Body:  dCopy.Body,
	}); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	s.docs[key] = dCopy

	return nil
}

// FindByID looks up a document by its ID.
func (s *InMemoryStore) FindByID(id uuid.UUID) (*content.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, exists := s.docs[id.String()]; exists {
		return copyDoc(doc), nil
	}

	return nil, fmt.Errorf("find by ID: %w", content.ErrNotFound)
}

// IDs returns the IDs of every stored document.
func (s *InMemoryStore) IDs() ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.defaultOrderedIDs(), nil
}

// Matching returns the IDs of documents matching the query in the
// store's default order (newest first). An empty query matches the
// entire corpus.
func (s *InMemoryStore) Matching(query string) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if query == "" {
		return s.defaultOrderedIDs(), nil
	}

	searchReq := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	searchReq.Size = batchSize

	var ids []uuid.UUID

	for {
		res, err := s.idx.Search(searchReq)
		if err != nil {
			return nil, fmt.Errorf("matching: %w", err)
		}

		for _, hit := range res.Hits {
			id, err := uuid.Parse(hit.ID)
			if err != nil {
				return nil, fmt.Errorf("matching: %w", err)
			}

			ids = append(ids, id)
		}

		if uint64(searchReq.From+len(res.Hits)) >= res.Total || len(res.Hits) == 0 {
			return ids, nil
		}

		searchReq.From += searchReq.Size
	}
}

// defaultOrderedIDs returns all document IDs ordered newest first. The
// caller must hold at least a read lock.
func (s *InMemoryStore) defaultOrderedIDs() []uuid.UUID {
	docs := make([]*content.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	ids := make([]uuid.UUID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}

	return ids
}

func copyDoc(doc *content.Document) *content.Document {
	dCopy := new(content.Document)
	*dCopy = *doc
	dCopy.TaxonomyTerms = append([]string(nil), doc.TaxonomyTerms...)

	return dCopy
}
