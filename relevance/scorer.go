// Package relevance computes deterministic, explainable relevance
// scores for (document, query) pairs using a fixed weighted-factor
// model, caching each computed score so every pair is scored at most
// once per valid cache lifetime.
package relevance

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/content"
	"github.com/findingsimple/simple-search/normalize"
	"github.com/findingsimple/simple-search/store"
)

// ScoreFloor is the minimum relevance value. A query with no matching
// factor anywhere still scores the floor, keeping "no match" sortable
// below "some match" without ever reaching zero.
const ScoreFloor = 1.0

// Terms shorter than this never contribute a term-level signal.
const minTermLength = 3

const defaultTermCacheSize = 4096

// Config defines configurations for the relevance scorer.
type Config struct {
	// Store for cached relevance scores.
	Scores store.ScoreStore

	// Renderer that expands shortcodes / macros in document bodies
	// before normalization. If not specified, bodies pass through
	// unchanged.
	Renderer content.Renderer

	// A clock instance used by the recency bonus. If not specified,
	// the default wall-clock will be used instead.
	Clock clock.Clock

	// Size of the per-(document, term) factor cache. If not
	// specified, a default of 4096 entries will be used instead.
	TermCacheSize int

	// RecencyBoost toggles the optional logarithmic recency bonus.
	RecencyBoost bool

	// The logger to use. If not defined an output-discarding logger
	// will be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.Scores == nil {
		err = multierror.Append(err, fmt.Errorf("score store not provided"))
	}

	if config.Renderer == nil {
		config.Renderer = content.NopRenderer()
	}

	if config.Clock == nil {
		config.Clock = clock.WallClock
	}

	if config.TermCacheSize <= 0 {
		config.TermCacheSize = defaultTermCacheSize
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Scorer computes and caches relevance scores.
type Scorer struct {
	config Config

	// Per-(document, term, factor) contribution scales, shared
	// across queries that have terms in common.
	termCache *lru.Cache[string, float64]

	// A computation hook that tests can override to observe when a
	// full (non cache-hit) computation runs.
	computeHook func(docID uuid.UUID, queryKey string)
}

// NewScorer creates and returns a fully configured scorer instance.
func NewScorer(config Config) (*Scorer, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("relevance scorer: config validation failed: %w", err)
	}

	cache, err := lru.New[string, float64](config.TermCacheSize)
	if err != nil {
		return nil, fmt.Errorf("relevance scorer: %w", err)
	}

	return &Scorer{
		config:      config,
		termCache:   cache,
		computeHook: func(uuid.UUID, string) {},
	}, nil
}

// Score returns the relevance of a document for a raw search query
// together with a flag reporting whether the value came from the score
// cache. A query that normalizes to nothing yields the floor score for
// every document: zero signal, not an error.
func (s *Scorer) Score(
	ctx context.Context, doc *content.Document, rawQuery string,
) (float64, bool, error) {

	queryKey := normalize.QueryKey(rawQuery)
	if queryKey == "" {
		return ScoreFloor, false, nil
	}

	if cached, exists, err := s.config.Scores.Score(doc.ID, queryKey); err != nil {
		return 0, false, fmt.Errorf("score lookup: %w", err)
	} else if exists {
		return cached, true, nil
	}

	score, err := s.compute(ctx, doc, queryKey)

	return score, false, err
}

// Rescore recomputes the relevance of a document for a query even when
// a cached entry exists, overwriting it. Used after content changes,
// when the cached value can no longer be trusted.
func (s *Scorer) Rescore(
	ctx context.Context, doc *content.Document, rawQuery string,
) (float64, error) {

	queryKey := normalize.QueryKey(rawQuery)
	if queryKey == "" {
		return ScoreFloor, nil
	}

	return s.compute(ctx, doc, queryKey)
}

// InvalidateDocument drops the per-term factor cache entries for a
// document whose content changed.
func (s *Scorer) InvalidateDocument(docID uuid.UUID) {
	prefix := docID.String() + "|"

	for _, key := range s.termCache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.termCache.Remove(key)
		}
	}
}

func (s *Scorer) compute(
	ctx context.Context, doc *content.Document, queryKey string,
) (float64, error) {

	s.computeHook(doc.ID, queryKey)

	needle := normalize.QueryFromKey(queryKey)
	terms := normalize.Terms(needle)
	sc := newScoringContext(ctx, s.config.Renderer, doc, len(terms))

	score := ScoreFloor

	// Whole-query pass: every factor either contributes at its full
	// weight or is flagged for the term-level fallback below.
	var unmet []factor

	for _, f := range factorTable {
		if f.kind == factorTaxonomy && !doc.HasTaxonomies {
			continue
		}

		// An exact title match is the strongest possible signal
		// and short-circuits the regular title check.
		if f.kind == factorTitle && sc.title == needle {
			score += shortCircuitImportance

			continue
		}

		if scale := f.eval(sc, needle); scale > 0 {
			score += f.weight * scale
		} else {
			unmet = append(unmet, f)
		}
	}

	// Term-level fallback: factors the whole query failed to satisfy
	// get another chance per individual term, each contributing
	// weight / termCount so the aggregate across terms never exceeds
	// the whole-query weight.
	if len(terms) > 1 {
		for _, term := range terms {
			if len([]rune(term)) < minTermLength || normalize.IsStopWord(term) {
				continue
			}

			for _, f := range unmet {
				scale := s.termScale(doc.ID, term, f, sc)
				score += f.weight / float64(len(terms)) * scale
			}
		}
	}

	score += s.documentBonuses(doc)

	// Only persist real matches. Caching a floor score would block a
	// future content change from ever producing a real one lazily.
	if score > ScoreFloor {
		if err := s.config.Scores.PutScore(doc.ID, queryKey, score); err != nil {
			return 0, fmt.Errorf("score persist: %w", err)
		}
	}

	s.config.Logger.WithFields(logrus.Fields{
		"doc_id":    doc.ID,
		"query_key": queryKey,
		"score":     score,
	}).Debug("computed relevance score")

	return score, nil
}

// termScale returns the contribution scale of one factor for one term,
// computing and caching it on first use.
func (s *Scorer) termScale(
	docID uuid.UUID, term string, f factor, sc *scoringContext,
) float64 {

	cacheKey := fmt.Sprintf("%s|%s|%d", docID, term, f.kind)
	if scale, found := s.termCache.Get(cacheKey); found {
		return scale
	}

	scale := f.eval(sc, term)
	s.termCache.Add(cacheKey, scale)

	return scale
}

// documentBonuses applies the non-keyword factors: revision history,
// comment count and (optionally) recency.
func (s *Scorer) documentBonuses(doc *content.Document) float64 {
	var bonus float64

	revisions := doc.RevisionCount
	if revisions > 100 {
		revisions = 100
	}
	bonus += lowImportance * float64(revisions) / 100

	comments := doc.CommentCount
	if comments > 100 {
		comments = 100
	}
	bonus += lowImportance * float64(comments) / 100

	if s.config.RecencyBoost && !doc.CreatedAt.IsZero() {
		ageDays := s.config.Clock.Now().Sub(doc.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}

		bonus += lowImportance / (1 + math.Log1p(ageDays))
	}

	return bonus
}

// Corpus scores every document in the store against the query,
// tolerating per-document failures: a document whose scoring fails is
// logged and skipped so the remainder of the corpus still gets scored.
func (s *Scorer) Corpus(
	ctx context.Context, docs content.Store, rawQuery string,
) error {

	ids, err := docs.IDs()
	if err != nil {
		return fmt.Errorf("corpus scoring: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, err := docs.FindByID(id)
		if err != nil {
			s.config.Logger.WithFields(logrus.Fields{
				"doc_id": id,
				"err":    err,
			}).Warn("skipping unscorable document")

			continue
		}

		if _, _, err := s.Score(ctx, doc, rawQuery); err != nil {
			s.config.Logger.WithFields(logrus.Fields{
				"doc_id": id,
				"err":    err,
			}).Warn("skipping unscorable document")
		}
	}

	return nil
}
