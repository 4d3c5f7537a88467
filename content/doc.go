// Package content defines the document model exposed by the hosting
// content platform together with the minimal set of collaborator
// interfaces the search core consumes. The platform owns the documents;
// the search core only reads them.
package content

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status describes the save-event state of a document revision. Only
// published saves are eligible for relevance index scheduling.
type Status uint8

const (
	// StatusPublished marks a live, visitor-visible document.
	StatusPublished Status = iota

	// StatusDraft marks an unpublished draft, including auto-drafts.
	StatusDraft

	// StatusAutosave marks an automatic periodic save.
	StatusAutosave

	// StatusRevision marks a stored historical revision of another
	// document.
	StatusRevision
)

// Document is a content item as served by the hosting platform.
type Document struct {
	// ID of the document within the content platform.
	ID uuid.UUID

	// Title of the document.
	Title string

	// Body of the document. May contain markup and embedded
	// shortcodes; callers normalize before text processing.
	Body string

	// Permalink is the public URL of the document.
	Permalink string

	// CreatedAt is the original publication time.
	CreatedAt time.Time

	// RevisionCount is the number of stored historical revisions.
	RevisionCount int

	// CommentCount is the number of approved comments.
	CommentCount int

	// TaxonomyTerms holds the names of all taxonomy terms assigned to
	// the document.
	TaxonomyTerms []string

	// HasTaxonomies reports whether the document's type declares any
	// taxonomies at all. When false, taxonomy terms carry no
	// relevance signal.
	HasTaxonomies bool

	// Status of the save event that produced this document state.
	Status Status
}

// Store should be implemented by objects providing read access to the
// platform's document corpus.
type Store interface {
	// FindByID looks up a document by its ID.
	FindByID(id uuid.UUID) (*Document, error)

	// IDs returns the IDs of every document of any type.
	IDs() ([]uuid.UUID, error)

	// Matching returns the IDs of documents the platform's own
	// full-text match would select for the query, in the platform's
	// default order. An empty query matches the entire corpus.
	Matching(query string) ([]uuid.UUID, error)
}

// Renderer applies the platform's shortcode / macro expansion step to a
// raw document body. The search core treats rendering as opaque.
type Renderer interface {
	Render(ctx context.Context, raw string) string
}

// RendererFunc adapts a plain function to the Renderer interface.
type RendererFunc func(ctx context.Context, raw string) string

// Render invokes the wrapped function.
func (f RendererFunc) Render(ctx context.Context, raw string) string {
	return f(ctx, raw)
}

// NopRenderer returns document bodies unchanged.
func NopRenderer() Renderer {
	return RendererFunc(func(_ context.Context, raw string) string {
		return raw
	})
}
