package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	check "gopkg.in/check.v1"

	"github.com/findingsimple/simple-search/content"
)

var _ = check.Suite(new(InMemoryStoreTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type InMemoryStoreTestSuite struct {
	store *InMemoryStore
}

func (s *InMemoryStoreTestSuite) SetUpTest(c *check.C) {
	var err error
	s.store, err = NewInMemoryStore()
	c.Assert(err, check.IsNil)
}

func (s *InMemoryStoreTestSuite) TearDownTest(c *check.C) {
	c.Assert(s.store.Close(), check.IsNil)
}

func (s *InMemoryStoreTestSuite) TestUpsertAndFind(c *check.C) {
	doc := &content.Document{
		ID:     uuid.New(),
		Title:  "Alpha Guide",
		Body:   "all about alpha",
		Status: content.StatusPublished,
	}
	c.Assert(s.store.Upsert(doc), check.IsNil)

	got, err := s.store.FindByID(doc.ID)
	c.Assert(err, check.IsNil)
	c.Assert(got, check.DeepEquals, doc)

	// The returned document is a copy: mutating it must not leak back
	// into the store.
	got.Title = "mutated"
	got, err = s.store.FindByID(doc.ID)
	c.Assert(err, check.IsNil)
	c.Assert(got.Title, check.Equals, "Alpha Guide")

	doc.Body = "revised alpha body"
	c.Assert(s.store.Upsert(doc), check.IsNil)

	got, err = s.store.FindByID(doc.ID)
	c.Assert(err, check.IsNil)
	c.Assert(got.Body, check.Equals, "revised alpha body")
}

func (s *InMemoryStoreTestSuite) TestUpsertWithoutID(c *check.C) {
	err := s.store.Upsert(&content.Document{Title: "No ID"})
	c.Assert(err, check.ErrorMatches, "(?ms).*document has missing / invalid id.*")
}

func (s *InMemoryStoreTestSuite) TestFindMissing(c *check.C) {
	_, err := s.store.FindByID(uuid.New())
	c.Assert(err, check.ErrorMatches, "(?ms).*not found.*")
}

func (s *InMemoryStoreTestSuite) TestIDsAreNewestFirst(c *check.C) {
	now := time.Now()

	older := &content.Document{ID: uuid.New(), Title: "Older", CreatedAt: now.Add(-time.Hour)}
	newer := &content.Document{ID: uuid.New(), Title: "Newer", CreatedAt: now}

	c.Assert(s.store.Upsert(older), check.IsNil)
	c.Assert(s.store.Upsert(newer), check.IsNil)

	ids, err := s.store.IDs()
	c.Assert(err, check.IsNil)
	c.Assert(ids, check.DeepEquals, []uuid.UUID{newer.ID, older.ID})
}

func (s *InMemoryStoreTestSuite) TestMatching(c *check.C) {
	match := &content.Document{
		ID:    uuid.New(),
		Title: "Alpha Guide",
		Body:  "a detailed look at alpha",
	}
	other := &content.Document{
		ID:    uuid.New(),
		Title: "Beta Notes",
		Body:  "nothing relevant here",
	}

	c.Assert(s.store.Upsert(match), check.IsNil)
	c.Assert(s.store.Upsert(other), check.IsNil)

	ids, err := s.store.Matching("alpha")
	c.Assert(err, check.IsNil)
	c.Assert(ids, check.DeepEquals, []uuid.UUID{match.ID})

	// An empty query matches the entire corpus in default order.
	ids, err = s.store.Matching("")
	c.Assert(err, check.IsNil)
	c.Assert(ids, check.HasLen, 2)
}
