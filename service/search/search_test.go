package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	check "gopkg.in/check.v1"

	"github.com/findingsimple/simple-search/content"
	contentmem "github.com/findingsimple/simple-search/content/memory"
	"github.com/findingsimple/simple-search/excerpt"
	"github.com/findingsimple/simple-search/lifecycle"
	"github.com/findingsimple/simple-search/relevance"
	memstore "github.com/findingsimple/simple-search/store/memory"
)

var _ = check.Suite(new(ConfigTestSuite))
var _ = check.Suite(new(SearchServiceTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type ConfigTestSuite struct{}

func (s *ConfigTestSuite) TestConfigValidation(c *check.C) {
	docs, err := contentmem.NewInMemoryStore()
	c.Assert(err, check.IsNil)
	defer func() { _ = docs.Close() }()

	st := memstore.NewInMemoryStore()
	scorer, err := relevance.NewScorer(relevance.Config{Scores: st})
	c.Assert(err, check.IsNil)

	manager, err := lifecycle.NewManager(lifecycle.ManagerConfig{
		Docs:       docs,
		Store:      st,
		Scorer:     scorer,
		Dispatcher: lifecycle.NewDispatcher(0, nil),
	})
	c.Assert(err, check.IsNil)

	builder, err := excerpt.NewBuilder(excerpt.Config{})
	c.Assert(err, check.IsNil)

	originalConfig := Config{
		Docs:       docs,
		Scores:     st,
		Lifecycle:  manager,
		Excerpts:   builder,
		ListenAddr: "localhost:8080",
	}

	config := originalConfig
	c.Assert(config.validate(), check.IsNil)

	c.Assert(config.NumOfResultsPerPage, check.Equals, defaultNumOfResultsPerPage)
	c.Assert(config.Logger, check.Not(check.IsNil), check.Commentf("default logger was not assigned"))

	config = originalConfig
	config.Docs = nil
	c.Assert(config.validate(), check.ErrorMatches, "(?ms).*document store not provided.*")

	config = originalConfig
	config.Scores = nil
	c.Assert(config.validate(), check.ErrorMatches, "(?ms).*score store not provided.*")

	config = originalConfig
	config.Lifecycle = nil
	c.Assert(config.validate(), check.ErrorMatches, "(?ms).*lifecycle manager not provided.*")

	config = originalConfig
	config.Excerpts = nil
	c.Assert(config.validate(), check.ErrorMatches, "(?ms).*excerpt builder not provided.*")

	config = originalConfig
	config.ListenAddr = ""
	c.Assert(config.validate(), check.ErrorMatches, "(?ms).*listen address not provided.*")
}

type SearchServiceTestSuite struct {
	docs       *contentmem.InMemoryStore
	store      *memstore.InMemoryStore
	dispatcher *lifecycle.Dispatcher
	manager    *lifecycle.Manager
	svc        *Service

	cancelDispatcher context.CancelFunc
}

func (s *SearchServiceTestSuite) SetUpTest(c *check.C) {
	var err error

	s.docs, err = contentmem.NewInMemoryStore()
	c.Assert(err, check.IsNil)

	s.store = memstore.NewInMemoryStore()
	s.dispatcher = lifecycle.NewDispatcher(0, nil)

	scorer, err := relevance.NewScorer(relevance.Config{Scores: s.store})
	c.Assert(err, check.IsNil)

	s.manager, err = lifecycle.NewManager(lifecycle.ManagerConfig{
		Docs:       s.docs,
		Store:      s.store,
		Scorer:     scorer,
		Dispatcher: s.dispatcher,
	})
	c.Assert(err, check.IsNil)

	builder, err := excerpt.NewBuilder(excerpt.Config{WindowSize: 10})
	c.Assert(err, check.IsNil)

	s.svc, err = New(Config{
		Docs:                s.docs,
		Scores:              s.store,
		Lifecycle:           s.manager,
		Excerpts:            builder,
		ListenAddr:          "localhost:0",
		NumOfResultsPerPage: 2,
	})
	c.Assert(err, check.IsNil)

	ctx, cancelFn := context.WithCancel(context.TODO())
	s.cancelDispatcher = cancelFn

	go func() { _ = s.dispatcher.Run(ctx) }()
}

func (s *SearchServiceTestSuite) TearDownTest(c *check.C) {
	if s.cancelDispatcher != nil {
		s.cancelDispatcher()
	}

	if s.docs != nil {
		c.Assert(s.docs.Close(), check.IsNil)
	}
}

func (s *SearchServiceTestSuite) addDoc(c *check.C, title, body string, createdAt time.Time) *content.Document {
	doc := &content.Document{
		ID:        uuid.New(),
		Title:     title,
		Body:      body,
		Permalink: "https://example.com/" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		CreatedAt: createdAt,
		Status:    content.StatusPublished,
	}
	c.Assert(s.docs.Upsert(doc), check.IsNil)

	return doc
}

func (s *SearchServiceTestSuite) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	return w
}

func (s *SearchServiceTestSuite) post(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))

	return w
}

func (s *SearchServiceTestSuite) decodeSearch(c *check.C, w *httptest.ResponseRecorder) searchResponse {
	var resp searchResponse
	c.Assert(json.NewDecoder(w.Body).Decode(&resp), check.IsNil)

	return resp
}

func (s *SearchServiceTestSuite) TestMatchAllQueryReturnsDefaultOrder(c *check.C) {
	now := time.Now()
	older := s.addDoc(c, "Older Post", "some words", now.Add(-time.Hour))
	newer := s.addDoc(c, "Newer Post", "other words", now)

	for _, query := range []string{"~", ""} {
		w := s.get(searchEndpoint + "?q=" + query)
		c.Assert(w.Code, check.Equals, http.StatusOK)

		resp := s.decodeSearch(c, w)
		c.Assert(resp.TotalCount, check.Equals, 2)
		c.Assert(resp.Results, check.HasLen, 2)
		c.Assert(resp.Results[0].ID, check.Equals, newer.ID.String())
		c.Assert(resp.Results[1].ID, check.Equals, older.ID.String())
		c.Assert(resp.Results[0].Score, check.IsNil)
	}

	// Match-all searches leave no tally and trigger no scoring.
	tallies, err := s.store.Tallies()
	c.Assert(err, check.IsNil)
	c.Assert(tallies, check.HasLen, 0)
}

func (s *SearchServiceTestSuite) TestTallyCountedOncePerSearchSession(c *check.C) {
	s.addDoc(c, "Alpha Guide", "alpha body text", time.Now())

	c.Assert(s.get(searchEndpoint+"?q=alpha").Code, check.Equals, http.StatusOK)
	c.Assert(s.get(searchEndpoint+"?q=alpha&page=1").Code, check.Equals, http.StatusOK)
	c.Assert(s.get(searchEndpoint+"?q=alpha&page=2").Code, check.Equals, http.StatusOK)

	tallies, err := s.store.Tallies()
	c.Assert(err, check.IsNil)
	c.Assert(tallies, check.DeepEquals, map[string]int{"alpha": 2})
}

func (s *SearchServiceTestSuite) TestFirstSearchScoresCorpusLazily(c *check.C) {
	s.addDoc(c, "Alpha Guide", "all about alpha", time.Now())

	c.Assert(s.get(searchEndpoint+"?q=alpha").Code, check.Equals, http.StatusOK)

	// The corpus scoring pass runs on the dispatcher worker.
	waitUntil(c, func() bool {
		exists, err := s.store.HasAny("alpha")

		return err == nil && exists
	})
}

func (s *SearchServiceTestSuite) TestDeepPageLinkScoresCorpus(c *check.C) {
	s.addDoc(c, "Alpha Guide", "all about alpha", time.Now())

	// A deep link straight to a later page of a never-seen query skips
	// the tally but still gets the corpus scored.
	c.Assert(s.get(searchEndpoint+"?q=alpha&page=3").Code, check.Equals, http.StatusOK)

	waitUntil(c, func() bool {
		exists, err := s.store.HasAny("alpha")

		return err == nil && exists
	})

	tallies, err := s.store.Tallies()
	c.Assert(err, check.IsNil)
	c.Assert(tallies, check.HasLen, 0)
}

func (s *SearchServiceTestSuite) TestResultsOrderedByCachedScore(c *check.C) {
	now := time.Now()
	low := s.addDoc(c, "Alpha Mention", "alpha appears once", now)
	high := s.addDoc(c, "Alpha Guide", "alpha alpha alpha", now.Add(-time.Hour))
	unscored := s.addDoc(c, "Alpha Footnote", "alpha in passing", now.Add(time.Hour))

	// Pre-existing scores keep EnsureIndexed from dispatching a
	// corpus pass that would interfere with the fixture.
	c.Assert(s.store.PutScore(high.ID, "alpha", 27.0), check.IsNil)
	c.Assert(s.store.PutScore(low.ID, "alpha", 4.0), check.IsNil)

	w := s.get(searchEndpoint + "?q=alpha")
	c.Assert(w.Code, check.Equals, http.StatusOK)

	resp := s.decodeSearch(c, w)
	c.Assert(resp.TotalCount, check.Equals, 3)
	c.Assert(resp.Results, check.HasLen, 2)
	c.Assert(resp.Results[0].ID, check.Equals, high.ID.String())
	c.Assert(*resp.Results[0].Score, check.Equals, 27.0)
	c.Assert(resp.Results[1].ID, check.Equals, low.ID.String())

	// The unscored document sorts last, onto the second page.
	resp = s.decodeSearch(c, s.get(searchEndpoint+"?q=alpha&page=2"))
	c.Assert(resp.Results, check.HasLen, 1)
	c.Assert(resp.Results[0].ID, check.Equals, unscored.ID.String())
	c.Assert(resp.Results[0].Score, check.IsNil)
}

func (s *SearchServiceTestSuite) TestResultExcerptsAreHighlighted(c *check.C) {
	doc := s.addDoc(c, "Alpha Guide", "an introduction to the alpha features we ship", time.Now())
	c.Assert(s.store.PutScore(doc.ID, "alpha", 14.0), check.IsNil)

	resp := s.decodeSearch(c, s.get(searchEndpoint+"?q=alpha"))
	c.Assert(resp.Results, check.HasLen, 1)
	c.Assert(
		strings.Contains(resp.Results[0].Excerpt, "<mark>alpha</mark>"),
		check.Equals,
		true,
		check.Commentf("excerpt %q", resp.Results[0].Excerpt),
	)
}

func (s *SearchServiceTestSuite) TestRebuildRoundTrip(c *check.C) {
	doc := s.addDoc(c, "Alpha Guide", "alpha body", time.Now())

	_, err := s.store.Increment("alpha")
	c.Assert(err, check.IsNil)
	c.Assert(s.store.PutScore(doc.ID, "stale", 99.0), check.IsNil)

	w := s.post(rebuildEndpoint)
	c.Assert(w.Code, check.Equals, http.StatusAccepted)

	var started map[string]string
	c.Assert(json.NewDecoder(w.Body).Decode(&started), check.IsNil)
	c.Assert(started["status"], check.Equals, lifecycle.RebuildProcessing)
	c.Assert(started["token"], check.Not(check.Equals), "")

	var progress progressResponse
	waitUntil(c, func() bool {
		w := s.get(rebuildProgressEndpoint)
		if w.Code != http.StatusOK {
			return false
		}

		progress = progressResponse{}
		if err := json.NewDecoder(w.Body).Decode(&progress); err != nil {
			return false
		}

		return progress.Status == lifecycle.RebuildComplete
	})

	c.Assert(progress.UpdatedIDs, check.DeepEquals, []string{doc.ID.String()})
	c.Assert(progress.HTML, check.Matches, ".*complete.*")

	exists, err := s.store.HasAny("stale")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, false)
}

func (s *SearchServiceTestSuite) TestRebuildConflictWhileProcessing(c *check.C) {
	c.Assert(s.store.Put("_fss_rebuild_status", lifecycle.RebuildProcessing), check.IsNil)

	w := s.post(rebuildEndpoint)
	c.Assert(w.Code, check.Equals, http.StatusConflict)

	var resp progressResponse
	c.Assert(json.NewDecoder(w.Body).Decode(&resp), check.IsNil)
	c.Assert(resp.Status, check.Equals, lifecycle.RebuildProcessing)
}

func (s *SearchServiceTestSuite) TestRebuildProgressReportsClearedEntries(c *check.C) {
	c.Assert(s.store.Put("_fss_rebuild_status", lifecycle.RebuildProcessing), check.IsNil)
	c.Assert(s.store.Put("_fss_rebuild_removed", "5"), check.IsNil)

	w := s.get(rebuildProgressEndpoint)
	c.Assert(w.Code, check.Equals, http.StatusOK)

	var resp progressResponse
	c.Assert(json.NewDecoder(w.Body).Decode(&resp), check.IsNil)
	c.Assert(resp.Status, check.Equals, lifecycle.RebuildProcessing)
	c.Assert(resp.HTML, check.Matches, ".*Cleared 5 stale score entries.*")
}

func (s *SearchServiceTestSuite) TestRebuildWorkerRejectsInvalidToken(c *check.C) {
	doc := s.addDoc(c, "Alpha Guide", "alpha body", time.Now())
	c.Assert(s.store.PutScore(doc.ID, "alpha", 14.0), check.IsNil)

	w := s.post(rebuildWorkerEndpoint + "?token=bogus")
	c.Assert(w.Code, check.Equals, http.StatusNoContent)

	// The invalid token never reached the rebuild: scores survive.
	exists, err := s.store.HasAny("alpha")
	c.Assert(err, check.IsNil)
	c.Assert(exists, check.Equals, true)
}

// waitUntil polls cond until it holds or the test times out.
func waitUntil(c *check.C, cond func() bool) {
	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	c.Fatal("condition not reached before timeout")
}
