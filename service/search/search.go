// Package search exposes the HTTP surface of the simple-search
// application: the search endpoint itself plus the admin endpoints that
// drive full index rebuilds.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/excerpt"
	"github.com/findingsimple/simple-search/lifecycle"
	"github.com/findingsimple/simple-search/normalize"
)

const (
	searchEndpoint          = "/search"
	rebuildEndpoint         = "/admin/rebuild"
	rebuildWorkerEndpoint   = "/admin/rebuild/worker"
	rebuildProgressEndpoint = "/admin/rebuild/progress"
)

// Service represents the search front-end of the simple-search
// application. It satisfies the service.Service interface.
type Service struct {
	config Config
	// Any router type that satisfies the http.Handler interface.
	router *chi.Mux
}

// New creates and returns a fully configured search service instance.
func New(config Config) (*Service, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("search service: config validation failed: %w", err)
	}

	svc := &Service{
		config: config,
		router: chi.NewRouter(),
	}

	svc.router.Get(searchEndpoint, svc.handleSearch)
	svc.router.Post(rebuildEndpoint, svc.handleRebuild)
	svc.router.Post(rebuildWorkerEndpoint, svc.handleRebuildWorker)
	svc.router.Get(rebuildProgressEndpoint, svc.handleRebuildProgress)

	return svc, nil
}

// Name returns the name of the service.
func (svc *Service) Name() string { return "search" }

// Run executes the service and blocks until the context gets cancelled
// or an error occurs.
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.config.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	srv := &http.Server{
		Addr:    svc.config.ListenAddr,
		Handler: svc.router,
	}

	go func() {
		<-ctx.Done()

		_ = srv.Close()
	}()

	svc.config.Logger.WithField("addr", svc.config.ListenAddr).Info(
		"started service",
	)

	if err = srv.Serve(l); err == http.ErrServerClosed {
		// Server closed gracefully.
		err = nil
	}

	return err
}

// searchResult is one entry of a search response.
type searchResult struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Permalink string   `json:"permalink"`
	Score     *float64 `json:"score,omitempty"`
	Excerpt   string   `json:"excerpt"`
}

// searchResponse is the JSON document returned by the search endpoint.
type searchResponse struct {
	Query      string         `json:"query"`
	Page       int            `json:"page"`
	TotalCount int            `json:"total_count"`
	Results    []searchResult `json:"results"`
}

// progressResponse is the JSON document returned by the rebuild
// progress endpoint.
type progressResponse struct {
	UpdatedIDs []string `json:"updated_ids"`
	Status     string   `json:"status"`
	HTML       string   `json:"html"`
}

func (svc *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	rawQuery := r.URL.Query().Get("q")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	// Queries that normalize to nothing (including the match-all "~"
	// convention) return the default-ordered corpus with no tally and
	// no relevance signal.
	queryKey := normalize.QueryKey(rawQuery)
	matchAll := queryKey == ""

	if !matchAll {
		// A new logical search session: count it. Pagination through
		// the same query must not re-count.
		if page <= 1 {
			if err := svc.config.Lifecycle.RecordSearch(rawQuery); err != nil {
				svc.config.Logger.WithField("err", err).Error("failed to record search tally")
			}
		}

		// Idempotent, so a deep link straight to a later page of a
		// never-seen query still gets its corpus scored.
		if err := svc.config.Lifecycle.EnsureIndexed(rawQuery); err != nil {
			svc.config.Logger.WithField("err", err).Error("failed to ensure query index")
		}
	}

	matchQuery := rawQuery
	if matchAll {
		matchQuery = ""
	}

	ids, err := svc.config.Docs.Matching(matchQuery)
	if err != nil {
		svc.config.Logger.WithField("err", err).Error("search query execution failed")
		svc.writeError(w, http.StatusInternalServerError)

		return
	}

	ordered := ids
	var scores map[uuid.UUID]float64

	if !matchAll {
		ordered, scores = svc.orderByRelevance(ids, queryKey)
	}

	offset := (page - 1) * svc.config.NumOfResultsPerPage
	if offset > len(ordered) {
		offset = len(ordered)
	}

	end := offset + svc.config.NumOfResultsPerPage
	if end > len(ordered) {
		end = len(ordered)
	}

	results := make([]searchResult, 0, end-offset)

	for _, id := range ordered[offset:end] {
		doc, err := svc.config.Docs.FindByID(id)
		if err != nil {
			svc.config.Logger.WithFields(logrus.Fields{
				"doc_id": id,
				"err":    err,
			}).Warn("skipping unloadable search result")

			continue
		}

		body := svc.config.Excerpts.Build(r.Context(), doc.Body, rawQuery)
		highlighted := excerpt.Highlight(template.HTMLEscapeString(body), rawQuery)

		result := searchResult{
			ID:        doc.ID.String(),
			Title:     doc.Title,
			Permalink: doc.Permalink,
			Excerpt:   highlighted,
		}

		if score, scored := scores[doc.ID]; scored {
			result.Score = &score
		}

		results = append(results, result)
	}

	svc.writeJSON(w, http.StatusOK, searchResponse{
		Query:      rawQuery,
		Page:       page,
		TotalCount: len(ordered),
		Results:    results,
	})
}

// orderByRelevance sorts candidate documents by their cached score,
// highest first. Documents with no cached score keep their candidate
// order at the tail.
func (svc *Service) orderByRelevance(
	ids []uuid.UUID, queryKey string,
) ([]uuid.UUID, map[uuid.UUID]float64) {

	scores := make(map[uuid.UUID]float64, len(ids))

	for _, id := range ids {
		score, exists, err := svc.config.Scores.Score(id, queryKey)
		if err != nil {
			svc.config.Logger.WithFields(logrus.Fields{
				"doc_id": id,
				"err":    err,
			}).Warn("failed to load relevance score")

			continue
		}

		if exists {
			scores[id] = score
		}
	}

	ordered := make([]uuid.UUID, len(ids))
	copy(ordered, ids)

	sort.SliceStable(ordered, func(i, j int) bool {
		scoreI, scoredI := scores[ordered[i]]
		scoreJ, scoredJ := scores[ordered[j]]

		if scoredI != scoredJ {
			return scoredI
		}

		return scoreI > scoreJ
	})

	return ordered, scores
}

func (svc *Service) handleRebuild(w http.ResponseWriter, _ *http.Request) {
	token, err := svc.config.Lifecycle.StartRebuild()
	if errors.Is(err, lifecycle.ErrRebuildInProgress) {
		svc.writeJSON(w, http.StatusConflict, progressResponse{
			UpdatedIDs: []string{},
			Status:     lifecycle.RebuildProcessing,
			HTML:       "<p>A rebuild is already in progress.</p>",
		})

		return
	} else if err != nil {
		svc.config.Logger.WithField("err", err).Error("failed to start index rebuild")
		svc.writeError(w, http.StatusInternalServerError)

		return
	}

	svc.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": lifecycle.RebuildProcessing,
		"token":  token,
	})
}

func (svc *Service) handleRebuildWorker(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if err := r.ParseForm(); err == nil {
			token = r.Form.Get("token")
		}
	}

	// RunRebuild validates and consumes the token itself; an invalid
	// token aborts silently so the response leaks nothing about the
	// current authorization.
	svc.config.Lifecycle.RunRebuild(r.Context(), token)

	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleRebuildProgress(w http.ResponseWriter, r *http.Request) {
	seen, _ := strconv.Atoi(r.URL.Query().Get("seen"))

	progress, err := svc.config.Lifecycle.Progress(seen)
	if err != nil {
		svc.config.Logger.WithField("err", err).Error("failed to load rebuild progress")
		svc.writeError(w, http.StatusInternalServerError)

		return
	}

	ids := progress.UpdatedIDs
	if ids == nil {
		ids = []string{}
	}

	html := "<p>Relevance index rebuild complete.</p>"
	if progress.Status == lifecycle.RebuildProcessing {
		html = fmt.Sprintf(
			"<p>Cleared %d stale score entries. Reindexed %d more documents.</p>",
			progress.Removed, len(ids),
		)
	}

	svc.writeJSON(w, http.StatusOK, progressResponse{
		UpdatedIDs: ids,
		Status:     progress.Status,
		HTML:       html,
	})
}

func (svc *Service) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		svc.config.Logger.WithField("err", err).Error("failed to encode response")
	}
}

func (svc *Service) writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": http.StatusText(status),
	})
}
