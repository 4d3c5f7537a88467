// Package lifecycle keeps the relevance index in step with the content
// it describes. It schedules decaying per-document reindex passes after
// edits, lazily scores the corpus the first time a query is seen,
// periodically drops rarely-searched queries and coordinates full index
// rebuilds.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/content"
	"github.com/findingsimple/simple-search/normalize"
	"github.com/findingsimple/simple-search/relevance"
	"github.com/findingsimple/simple-search/store"
)

const (
	jobQuickReindex = "quick_reindex"
	jobCycleReindex = "cycle_reindex"
	jobTallyCleanup = "tally_cleanup"

	// quickReindexDelay debounces bursts of edits: only the last save
	// within the window triggers the quick reindex pass.
	quickReindexDelay = 2 * time.Minute

	cleanupInterval = 30 * 24 * time.Hour

	// minKeptTally is the search count below which a query is dropped
	// during cleanup.
	minKeptTally = 2

	cycleCountPrefix = "_fss_reindex_cycle_"
)

// cycleDelays holds the decaying gaps between follow-up reindex passes
// for an edited document. After the last entry the document is
// considered settled and no further passes run.
var cycleDelays = []time.Duration{
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
	14 * 24 * time.Hour,
	30 * 24 * time.Hour,
}

// ManagerConfig encapsulates the settings for creating a lifecycle
// Manager.
type ManagerConfig struct {
	// Docs is the content source being indexed.
	Docs content.Store

	// Store persists scores, tallies and lifecycle bookkeeping.
	Store store.Store

	// Scorer computes relevance scores.
	Scorer *relevance.Scorer

	// Dispatcher runs expensive work off the request path.
	Dispatcher *Dispatcher

	// Clock drives the reindex schedule. If not specified, the
	// system's real clock will be used instead.
	Clock clock.Clock

	// Logger for logging manager activity. If not defined, a no-op
	// logger will be used instead.
	Logger *logrus.Entry
}

func (config *ManagerConfig) validate() error {
	var err error

	if config.Docs == nil {
		err = multierror.Append(err, errors.New("document store has not been provided"))
	}

	if config.Store == nil {
		err = multierror.Append(err, errors.New("lifecycle store has not been provided"))
	}

	if config.Scorer == nil {
		err = multierror.Append(err, errors.New("relevance scorer has not been provided"))
	}

	if config.Dispatcher == nil {
		err = multierror.Append(err, errors.New("task dispatcher has not been provided"))
	}

	if config.Clock == nil {
		config.Clock = clock.WallClock
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Manager owns the index lifecycle: it reacts to document saves with a
// debounced, decaying reindex schedule, lazily scores the corpus for
// first-seen queries, and periodically cleans up rarely-searched
// queries. Reindex work runs serially inside the scheduler loop.
type Manager struct {
	config ManagerConfig
	sched  *Scheduler

	rebuild *rebuildState
}

// NewManager creates and returns a lifecycle manager instance.
func NewManager(config ManagerConfig) (*Manager, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("lifecycle manager: config validation failed: %w", err)
	}

	return &Manager{
		config:  config,
		sched:   NewScheduler(config.Clock),
		rebuild: newRebuildState(),
	}, nil
}

// Name implements service.Service.
func (m *Manager) Name() string { return "index-lifecycle" }

// Run implements service.Service, executing the reindex schedule loop
// until the context gets cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.config.Logger.Info("starting service")
	defer m.config.Logger.Info("stopped service")

	return m.sched.Run(ctx, m.handle)
}

// DocumentSaved resets the reindex schedule for a freshly saved
// document: a quick pass fires after the debounce window and the
// decaying follow-up cycle starts over. Autosaves and revisions are
// ignored; a document leaving published state has its pending passes
// cancelled instead.
func (m *Manager) DocumentSaved(doc *content.Document) error {
	if doc == nil || doc.ID == uuid.Nil {
		return content.ErrMissingDocID
	}

	switch doc.Status {
	case content.StatusAutosave, content.StatusRevision:
		return nil
	case content.StatusPublished:
	default:
		m.dropSchedule(doc.ID)

		return nil
	}

	arg := doc.ID.String()

	if err := m.config.Store.Delete(cycleCountPrefix + arg); err != nil {
		return fmt.Errorf("reset reindex cycle: %w", err)
	}

	m.sched.Cancel(jobCycleReindex, arg)
	m.sched.ScheduleAfter(jobQuickReindex, arg, quickReindexDelay)

	m.config.Logger.WithField("doc_id", arg).Debug("scheduled quick reindex")

	return nil
}

// RecordSearch bumps the tally for a query and makes sure the periodic
// tally cleanup is armed. Queries that normalize to nothing are not
// tracked.
func (m *Manager) RecordSearch(rawQuery string) error {
	queryKey := normalize.QueryKey(rawQuery)
	if queryKey == "" {
		return nil
	}

	if _, err := m.config.Store.Increment(queryKey); err != nil {
		return fmt.Errorf("record search: %w", err)
	}

	m.sched.ScheduleEvery(jobTallyCleanup, "", cleanupInterval)

	return nil
}

// EnsureIndexed dispatches a background corpus-scoring pass the first
// time a query is seen. Subsequent calls for an already-scored query
// are no-ops.
func (m *Manager) EnsureIndexed(rawQuery string) error {
	queryKey := normalize.QueryKey(rawQuery)
	if queryKey == "" {
		return nil
	}

	exists, err := m.config.Store.HasAny(queryKey)
	if err != nil {
		return fmt.Errorf("ensure indexed: %w", err)
	} else if exists {
		return nil
	}

	m.config.Dispatcher.Submit(Task{
		Key: "corpus|" + queryKey,
		Run: func(ctx context.Context) {
			if err := m.config.Scorer.Corpus(ctx, m.config.Docs, rawQuery); err != nil {
				m.config.Logger.WithFields(logrus.Fields{
					"query_key": queryKey,
					"err":       err,
				}).Error("corpus scoring failed")
			}
		},
	})

	return nil
}

// Cleanup drops every query searched fewer than two times, removing
// both its tally and its cached scores. It returns the number of
// queries dropped.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	tallies, err := m.config.Store.Tallies()
	if err != nil {
		return 0, fmt.Errorf("tally cleanup: %w", err)
	}

	var dropped int

	for queryKey, count := range tallies {
		if count >= minKeptTally {
			continue
		}

		if err := ctx.Err(); err != nil {
			return dropped, err
		}

		if _, err := m.config.Store.DeleteByQuery(queryKey); err != nil {
			return dropped, fmt.Errorf("tally cleanup: %w", err)
		}

		if err := m.config.Store.DeleteTally(queryKey); err != nil {
			return dropped, fmt.Errorf("tally cleanup: %w", err)
		}

		dropped++
	}

	m.config.Logger.WithField("dropped", dropped).Info("cleaned up rarely-searched queries")

	return dropped, nil
}

func (m *Manager) handle(ctx context.Context, job, arg string) {
	var err error

	switch job {
	case jobQuickReindex:
		err = m.quickReindex(ctx, arg)
	case jobCycleReindex:
		err = m.cycleReindex(ctx, arg)
	case jobTallyCleanup:
		_, err = m.Cleanup(ctx)
	default:
		err = fmt.Errorf("unknown job %q", job)
	}

	if err != nil {
		m.config.Logger.WithFields(logrus.Fields{
			"job": job,
			"arg": arg,
			"err": err,
		}).Error("lifecycle job failed")
	}
}

// quickReindex runs the debounced first pass for an edited document and
// arms the first follow-up cycle.
func (m *Manager) quickReindex(ctx context.Context, arg string) error {
	found, err := m.reindexDocument(ctx, arg)
	if err != nil || !found {
		return err
	}

	if err := m.config.Store.Put(cycleCountPrefix+arg, "0"); err != nil {
		return fmt.Errorf("store reindex cycle: %w", err)
	}

	m.sched.ScheduleAfter(jobCycleReindex, arg, cycleDelays[0])

	return nil
}

// cycleReindex runs one follow-up pass and either arms the next one at
// a longer delay or, once the cycle table is exhausted, lets the
// document settle.
func (m *Manager) cycleReindex(ctx context.Context, arg string) error {
	found, err := m.reindexDocument(ctx, arg)
	if err != nil || !found {
		return err
	}

	completed := 0

	if raw, exists, err := m.config.Store.Get(cycleCountPrefix + arg); err != nil {
		return fmt.Errorf("load reindex cycle: %w", err)
	} else if exists {
		if _, err := fmt.Sscanf(raw, "%d", &completed); err != nil {
			completed = 0
		}
	}

	completed++

	if completed >= len(cycleDelays) {
		if err := m.config.Store.Delete(cycleCountPrefix + arg); err != nil {
			return fmt.Errorf("clear reindex cycle: %w", err)
		}

		m.config.Logger.WithField("doc_id", arg).Debug("reindex cycle complete")

		return nil
	}

	if err := m.config.Store.Put(cycleCountPrefix+arg, fmt.Sprintf("%d", completed)); err != nil {
		return fmt.Errorf("store reindex cycle: %w", err)
	}

	m.sched.ScheduleAfter(jobCycleReindex, arg, cycleDelays[completed])

	return nil
}

// reindexDocument recomputes the scores of one document against every
// tracked query. A document that no longer exists has its pending
// schedule dropped instead and false gets returned.
func (m *Manager) reindexDocument(ctx context.Context, arg string) (bool, error) {
	docID, err := uuid.Parse(arg)
	if err != nil {
		return false, fmt.Errorf("reindex document: %w", err)
	}

	doc, err := m.config.Docs.FindByID(docID)
	if errors.Is(err, content.ErrNotFound) {
		m.dropSchedule(docID)

		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("reindex document: %w", err)
	}

	m.config.Scorer.InvalidateDocument(docID)

	tallies, err := m.config.Store.Tallies()
	if err != nil {
		return false, fmt.Errorf("reindex document: %w", err)
	}

	for queryKey := range tallies {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		query := normalize.QueryFromKey(queryKey)
		if _, err := m.config.Scorer.Rescore(ctx, doc, query); err != nil {
			m.config.Logger.WithFields(logrus.Fields{
				"doc_id":    arg,
				"query_key": queryKey,
				"err":       err,
			}).Warn("skipping query during reindex")
		}
	}

	return true, nil
}

// dropSchedule cancels the pending reindex passes for a document and
// clears its cycle counter.
func (m *Manager) dropSchedule(docID uuid.UUID) {
	arg := docID.String()

	m.sched.Cancel(jobQuickReindex, arg)
	m.sched.Cancel(jobCycleReindex, arg)

	if err := m.config.Store.Delete(cycleCountPrefix + arg); err != nil {
		m.config.Logger.WithFields(logrus.Fields{
			"doc_id": arg,
			"err":    err,
		}).Warn("failed to clear reindex cycle")
	}
}
