package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/normalize"
)

const (
	rebuildTokenKey   = "_fss_rebuild_token"
	rebuildStatusKey  = "_fss_rebuild_status"
	rebuildUpdatedKey = "_fss_rebuild_updated"
	rebuildRemovedKey = "_fss_rebuild_removed"

	rebuildTaskKey = "rebuild"

	// rebuildTokenTTL bounds how long an issued rebuild authorization
	// stays valid before the worker picks it up.
	rebuildTokenTTL = time.Hour
)

// Rebuild status values surfaced through Progress.
const (
	RebuildProcessing = "processing"
	RebuildComplete   = "complete"
)

// ErrRebuildInProgress is returned by StartRebuild when a rebuild is
// already underway.
var ErrRebuildInProgress = errors.New("an index rebuild is already in progress")

// rebuildState serializes the check-then-start handoff; the rebuild
// itself runs on the dispatcher worker.
type rebuildState struct {
	mu sync.Mutex
}

func newRebuildState() *rebuildState {
	return &rebuildState{}
}

// RebuildProgress is a snapshot of an ongoing or finished rebuild.
type RebuildProgress struct {
	// UpdatedIDs lists the documents rescored since the caller's last
	// poll.
	UpdatedIDs []string

	// Removed is the number of score entries discarded when the rebuild
	// started.
	Removed int

	// Status is either RebuildProcessing or RebuildComplete.
	Status string
}

// StartRebuild begins a full rebuild of the relevance index: a one-shot
// authorization token is issued and a rebuild task is handed to the
// dispatcher. The token is returned so a caller can also trigger the
// worker out-of-band. A rebuild that is already underway is not
// restarted.
func (m *Manager) StartRebuild() (string, error) {
	m.rebuild.mu.Lock()
	defer m.rebuild.mu.Unlock()

	if status, exists, err := m.config.Store.Get(rebuildStatusKey); err != nil {
		return "", fmt.Errorf("start rebuild: %w", err)
	} else if exists && status == RebuildProcessing {
		return "", ErrRebuildInProgress
	}

	token := uuid.New().String()
	expiry := m.config.Clock.Now().Add(rebuildTokenTTL).Unix()

	if err := m.config.Store.Put(rebuildTokenKey, fmt.Sprintf("%s|%d", token, expiry)); err != nil {
		return "", fmt.Errorf("start rebuild: %w", err)
	}

	if err := m.config.Store.Put(rebuildStatusKey, RebuildProcessing); err != nil {
		return "", fmt.Errorf("start rebuild: %w", err)
	}

	if err := m.config.Store.Put(rebuildUpdatedKey, ""); err != nil {
		return "", fmt.Errorf("start rebuild: %w", err)
	}

	if err := m.config.Store.Put(rebuildRemovedKey, "0"); err != nil {
		return "", fmt.Errorf("start rebuild: %w", err)
	}

	accepted := m.config.Dispatcher.Submit(Task{
		Key: rebuildTaskKey,
		Run: func(ctx context.Context) {
			m.RunRebuild(ctx, token)
		},
	})
	if !accepted {
		// No worker will ever pick this rebuild up. Roll back the keys
		// written above so a later attempt is not locked out by a
		// rebuild that never ran.
		if err := m.config.Store.Delete(rebuildTokenKey); err != nil {
			return "", fmt.Errorf("start rebuild: %w", err)
		}

		if err := m.clearRebuildState(); err != nil {
			return "", fmt.Errorf("start rebuild: %w", err)
		}

		return "", ErrRebuildInProgress
	}

	m.config.Logger.Info("index rebuild scheduled")

	return token, nil
}

// RunRebuild performs the rebuild after validating and consuming the
// one-shot token. A stale, mismatched or missing token aborts silently:
// the caller was not the holder of the current authorization.
func (m *Manager) RunRebuild(ctx context.Context, token string) {
	consumed, outstanding := m.consumeToken(token)
	if !consumed {
		m.config.Logger.Warn("rejected rebuild request with invalid token")

		// With no valid token outstanding nobody can complete this
		// rebuild anymore, so stop reporting it as processing.
		if !outstanding {
			if err := m.clearRebuildState(); err != nil {
				m.config.Logger.WithField("err", err).Warn("failed to clear rebuild state")
			}
		}

		return
	}

	removed, err := m.config.Store.DeleteAll()
	if err != nil {
		m.failRebuild(fmt.Errorf("clear scores: %w", err))

		return
	}

	if err := m.config.Store.Put(rebuildRemovedKey, strconv.Itoa(removed)); err != nil {
		m.failRebuild(fmt.Errorf("record cleared entries: %w", err))

		return
	}

	m.config.Logger.WithField("removed", removed).Info("cleared relevance index for rebuild")

	tallies, err := m.config.Store.Tallies()
	if err != nil {
		m.failRebuild(fmt.Errorf("load tallies: %w", err))

		return
	}

	ids, err := m.config.Docs.IDs()
	if err != nil {
		m.failRebuild(fmt.Errorf("list documents: %w", err))

		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			m.failRebuild(ctx.Err())

			return
		}

		if err := m.rescoreForRebuild(ctx, id, tallies); err != nil {
			m.config.Logger.WithFields(logrus.Fields{
				"doc_id": id,
				"err":    err,
			}).Warn("skipping document during rebuild")

			continue
		}

		if err := m.appendUpdated(id); err != nil {
			m.failRebuild(err)

			return
		}
	}

	if err := m.config.Store.Put(rebuildStatusKey, RebuildComplete); err != nil {
		m.failRebuild(err)

		return
	}

	m.config.Logger.WithField("docs", len(ids)).Info("index rebuild complete")
}

// Progress reports rebuild progress to a polling caller. seen is the
// number of updated documents the caller has already observed; only the
// IDs beyond it are returned. Once a completed rebuild has been
// observed its bookkeeping is cleared.
func (m *Manager) Progress(seen int) (*RebuildProgress, error) {
	status, exists, err := m.config.Store.Get(rebuildStatusKey)
	if err != nil {
		return nil, fmt.Errorf("rebuild progress: %w", err)
	} else if !exists {
		return &RebuildProgress{Status: RebuildComplete}, nil
	}

	raw, _, err := m.config.Store.Get(rebuildUpdatedKey)
	if err != nil {
		return nil, fmt.Errorf("rebuild progress: %w", err)
	}

	var ids []string
	if raw != "" {
		ids = strings.Split(raw, ",")
	}

	rawRemoved, _, err := m.config.Store.Get(rebuildRemovedKey)
	if err != nil {
		return nil, fmt.Errorf("rebuild progress: %w", err)
	}
	removed, _ := strconv.Atoi(rawRemoved)

	if seen < 0 {
		seen = 0
	}

	if seen < len(ids) {
		ids = ids[seen:]
	} else {
		ids = nil
	}

	if status == RebuildComplete {
		if err := m.clearRebuildState(); err != nil {
			return nil, err
		}
	}

	return &RebuildProgress{UpdatedIDs: ids, Removed: removed, Status: status}, nil
}

// consumeToken validates the one-shot rebuild token and removes it so
// it cannot authorize a second run. outstanding reports whether, after
// a failed attempt, a valid token is still held by someone else and the
// rebuild may yet be fulfilled.
func (m *Manager) consumeToken(token string) (consumed, outstanding bool) {
	raw, exists, err := m.config.Store.Get(rebuildTokenKey)
	if err != nil {
		// The token may well be there, the store just could not say.
		return false, true
	} else if !exists {
		return false, false
	}

	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return false, false
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m.config.Clock.Now().Unix() > expiry {
		return false, false
	}

	if parts[0] != token {
		return false, true
	}

	return m.config.Store.Delete(rebuildTokenKey) == nil, true
}

func (m *Manager) rescoreForRebuild(
	ctx context.Context, docID uuid.UUID, tallies map[string]int,
) error {

	doc, err := m.config.Docs.FindByID(docID)
	if err != nil {
		return err
	}

	m.config.Scorer.InvalidateDocument(docID)

	for queryKey := range tallies {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := normalize.QueryFromKey(queryKey)
		if _, err := m.config.Scorer.Rescore(ctx, doc, query); err != nil {
			m.config.Logger.WithFields(logrus.Fields{
				"doc_id":    docID,
				"query_key": queryKey,
				"err":       err,
			}).Warn("skipping query during rebuild")
		}
	}

	return nil
}

func (m *Manager) appendUpdated(docID uuid.UUID) error {
	raw, _, err := m.config.Store.Get(rebuildUpdatedKey)
	if err != nil {
		return fmt.Errorf("record rebuild progress: %w", err)
	}

	if raw != "" {
		raw += ","
	}

	if err := m.config.Store.Put(rebuildUpdatedKey, raw+docID.String()); err != nil {
		return fmt.Errorf("record rebuild progress: %w", err)
	}

	return nil
}

func (m *Manager) failRebuild(cause error) {
	m.config.Logger.WithField("err", cause).Error("index rebuild failed")

	if err := m.clearRebuildState(); err != nil {
		m.config.Logger.WithField("err", err).Warn("failed to clear rebuild state")
	}
}

func (m *Manager) clearRebuildState() error {
	for _, key := range []string{rebuildStatusKey, rebuildUpdatedKey, rebuildRemovedKey} {
		if err := m.config.Store.Delete(key); err != nil {
			return fmt.Errorf("clear rebuild state: %w", err)
		}
	}

	return nil
}
