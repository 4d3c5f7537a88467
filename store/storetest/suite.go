// Package storetest provides a re-usable suite of store contract tests
// that can be executed against any concrete store.Store implementation.
package storetest

import (
	"github.com/google/uuid"
	check "gopkg.in/check.v1"

	"github.com/findingsimple/simple-search/store"
)

// BaseSuite defines a set of re-usable store related tests that can be
// executed against any concrete type that implements store.Store.
type BaseSuite struct {
	s store.Store
}

// SetStore sets the store instance the suite runs against.
func (s *BaseSuite) SetStore(st store.Store) {
	s.s = st
}

// TestScoreRoundTrip verifies score insert, lookup and overwrite.
func (s *BaseSuite) TestScoreRoundTrip(c *check.C) {
	docID := uuid.New()

	_, exists, err := s.s.Score(docID, "alpha_beta")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, false)

	c.Assert(s.s.PutScore(docID, "alpha_beta", 14.5), check.IsNil)

	score, exists, err := s.s.Score(docID, "alpha_beta")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, true)
	c.Assert(score, check.Equals, 14.5)

	// Overwrites replace the entry in place.
	c.Assert(s.s.PutScore(docID, "alpha_beta", 27.0), check.IsNil)

	score, _, err = s.s.Score(docID, "alpha_beta")
	c.Assert(err, check.IsNil)
	c.Assert(score, check.Equals, 27.0)
}

// TestHasAny verifies the query-level existence check.
func (s *BaseSuite) TestHasAny(c *check.C) {
	exists, err := s.s.HasAny("unseen_query")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, false)

	c.Assert(s.s.PutScore(uuid.New(), "unseen_query", 3), check.IsNil)

	exists, err = s.s.HasAny("unseen_query")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, true)
}

// TestDeleteByQuery verifies per-query deletion and its count.
func (s *BaseSuite) TestDeleteByQuery(c *check.C) {
	c.Assert(s.s.PutScore(uuid.New(), "doomed", 2), check.IsNil)
	c.Assert(s.s.PutScore(uuid.New(), "doomed", 4), check.IsNil)
	c.Assert(s.s.PutScore(uuid.New(), "spared", 6), check.IsNil)

	deleted, err := s.s.DeleteByQuery("doomed")
	c.Assert(err, check.IsNil)
	c.Assert(deleted, check.Equals, 2)

	exists, err := s.s.HasAny("doomed")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, false)

	exists, err = s.s.HasAny("spared")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, true)

	// A second deletion finds nothing left to remove.
	deleted, err = s.s.DeleteByQuery("doomed")
	c.Assert(err, check.IsNil)
	c.Assert(deleted, check.Equals, 0)
}

// TestDeleteAll verifies full wipes report the removed entry count.
func (s *BaseSuite) TestDeleteAll(c *check.C) {
	c.Assert(s.s.PutScore(uuid.New(), "first", 2), check.IsNil)
	c.Assert(s.s.PutScore(uuid.New(), "second", 4), check.IsNil)

	deleted, err := s.s.DeleteAll()
	c.Assert(err, check.IsNil)
	c.Assert(deleted, check.Equals, 2)

	deleted, err = s.s.DeleteAll()
	c.Assert(err, check.IsNil)
	c.Assert(deleted, check.Equals, 0)
}

// TestTallies verifies increment, listing and idempotent deletion.
func (s *BaseSuite) TestTallies(c *check.C) {
	count, err := s.s.Increment("popular")
	c.Assert(err, check.IsNil)
	c.Assert(count, check.Equals, 1)

	count, err = s.s.Increment("popular")
	c.Assert(err, check.IsNil)
	c.Assert(count, check.Equals, 2)

	_, err = s.s.Increment("rare")
	c.Assert(err, check.IsNil)

	tallies, err := s.s.Tallies()
	c.Assert(err, check.IsNil)
	c.Assert(tallies, check.DeepEquals, map[string]int{
		"popular": 2,
		"rare":    1,
	})

	c.Assert(s.s.DeleteTally("rare"), check.IsNil)
	c.Assert(s.s.DeleteTally("rare"), check.IsNil)

	tallies, err = s.s.Tallies()
	c.Assert(err, check.IsNil)
	c.Assert(tallies, check.DeepEquals, map[string]int{"popular": 2})
}

// TestKV verifies the global key-value surface.
func (s *BaseSuite) TestKV(c *check.C) {
	_, exists, err := s.s.Get("rebuild_token")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, false)

	c.Assert(s.s.Put("rebuild_token", "abc"), check.IsNil)
	c.Assert(s.s.Put("rebuild_token", "def"), check.IsNil)

	value, exists, err := s.s.Get("rebuild_token")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, true)
	c.Assert(value, check.Equals, "def")

	c.Assert(s.s.Delete("rebuild_token"), check.IsNil)
	c.Assert(s.s.Delete("rebuild_token"), check.IsNil)

	_, exists, err = s.s.Get("rebuild_token")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, false)
}
