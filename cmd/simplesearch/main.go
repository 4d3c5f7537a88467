package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/content"
	contentmem "github.com/findingsimple/simple-search/content/memory"
	"github.com/findingsimple/simple-search/excerpt"
	"github.com/findingsimple/simple-search/lifecycle"
	"github.com/findingsimple/simple-search/relevance"
	"github.com/findingsimple/simple-search/service"
	"github.com/findingsimple/simple-search/service/search"
	"github.com/findingsimple/simple-search/store"
	memstore "github.com/findingsimple/simple-search/store/memory"
	"github.com/findingsimple/simple-search/store/pg"
)

const (
	appName = "simple-search"
	appSHA  = "compiled-and-deployed-at"
)

func main() {
	host, _ := os.Hostname()
	// Instantiate a root logger that will be passed to all services.
	rootLogger := logrus.New()
	logger := rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"SHA":  appSHA,
		"host": host,
	})

	svcGroup, err := configureServices(logger)
	if err != nil {
		logger.WithField("err", err).Error("shutting down due to an error")

		return
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	// Launch a separate process to listen and respond to os signals
	// and trigger a graceful shutdown.
	go func() {
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGINT, syscall.SIGHUP)

		select {
		case s := <-signalChan:
			logger.WithField("signal", s.String()).Info("shutting down due to os signal")
			// Cancel context, this signals all services to return since they all
			// share this same context.
			cancelFn()
		case <-ctx.Done():
		}
	}()

	if err := svcGroup.Execute(ctx); err != nil {
		logger.WithField("err", err).Error("shutting down due to an error")

		return
	}

	// Shutdown due to context cancellation.
	logger.Info("shutdown complete")
}

func configureServices(logger *logrus.Entry) (service.Group, error) {
	var searchConfig search.Config

	flag.StringVar(
		&searchConfig.ListenAddr, "search-listen-addr",
		":8080", "Address to listen on for incoming search requests",
	)
	flag.IntVar(
		&searchConfig.NumOfResultsPerPage, "search-results-per-page",
		10, "Number of search results returned per page",
	)

	excerptWindowSize := flag.Int(
		"excerpt-window-size", excerpt.DefaultWindowSize,
		"Number of words in each search result excerpt",
	)
	recencyBoost := flag.Bool(
		"recency-boost", false,
		"Grant newer documents a small relevance bonus",
	)
	queueDepth := flag.Int(
		"task-queue-depth", 0,
		"Capacity of the background task queue. [0 selects the default]",
	)
	storeURI := flag.String(
		"store-uri", "in-memory://",
		"URI for connecting to the score and tally store."+
			" [supported URI's: in-memory://, postgresql://user@host:5432/simplesearch?sslmode=disable]",
	)
	contentFile := flag.String(
		"content-file", "",
		"Path to a JSON file of documents to load into the in-memory content store",
	)

	flag.Parse()

	dataStore, err := getStore(*storeURI, logger)
	if err != nil {
		return nil, err
	}

	docs, err := getContentStore(*contentFile, logger)
	if err != nil {
		return nil, err
	}

	renderer := content.NopRenderer()

	scorer, err := relevance.NewScorer(relevance.Config{
		Scores:       dataStore,
		Renderer:     renderer,
		RecencyBoost: *recencyBoost,
		Logger:       logger.WithField("component", "relevance-scorer"),
	})
	if err != nil {
		return nil, err
	}

	builder, err := excerpt.NewBuilder(excerpt.Config{
		Renderer:   renderer,
		WindowSize: *excerptWindowSize,
		Logger:     logger.WithField("component", "excerpt-builder"),
	})
	if err != nil {
		return nil, err
	}

	dispatcher := lifecycle.NewDispatcher(
		*queueDepth, logger.WithField("component", "task-dispatcher"),
	)

	manager, err := lifecycle.NewManager(lifecycle.ManagerConfig{
		Docs:       docs,
		Store:      dataStore,
		Scorer:     scorer,
		Dispatcher: dispatcher,
		Logger:     logger.WithField("service", "index-lifecycle"),
	})
	if err != nil {
		return nil, err
	}

	searchConfig.Docs = docs
	searchConfig.Scores = dataStore
	searchConfig.Lifecycle = manager
	searchConfig.Excerpts = builder
	searchConfig.Logger = logger.WithField("service", "search")

	searchSvc, err := search.New(searchConfig)
	if err != nil {
		return nil, err
	}

	return service.Group{
		manager,
		service.Func("task-dispatcher", dispatcher.Run),
		searchSvc,
	}, nil
}

func getStore(storeURI string, logger *logrus.Entry) (store.Store, error) {
	if storeURI == "" {
		return nil, fmt.Errorf("store URI must be specified with --store-uri")
	}

	url, err := url.Parse(storeURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store URI: %w", err)
	}

	switch url.Scheme {
	case "in-memory":
		logger.Info("using in-memory score store")

		return memstore.NewInMemoryStore(), nil
	case "postgresql":
		logger.Info("using postgres score store")

		return pg.NewPostgresStore(storeURI)
	default:
		return nil, fmt.Errorf("unsupported store URI scheme: %q", url.Scheme)
	}
}

// seedDoc is the on-disk shape of a document in a content file.
type seedDoc struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Permalink     string    `json:"permalink"`
	CreatedAt     time.Time `json:"created_at"`
	RevisionCount int       `json:"revision_count"`
	CommentCount  int       `json:"comment_count"`
	TaxonomyTerms []string  `json:"taxonomy_terms"`
	HasTaxonomies bool      `json:"has_taxonomies"`
}

func getContentStore(contentFile string, logger *logrus.Entry) (content.Store, error) {
	docs, err := contentmem.NewInMemoryStore()
	if err != nil {
		return nil, err
	}

	if contentFile == "" {
		logger.Info("using empty in-memory content store")

		return docs, nil
	}

	f, err := os.Open(contentFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open content file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var seeds []seedDoc
	if err := json.NewDecoder(f).Decode(&seeds); err != nil {
		return nil, fmt.Errorf("failed to parse content file: %w", err)
	}

	for _, seed := range seeds {
		id, err := uuid.Parse(seed.ID)
		if err != nil {
			id = uuid.New()
		}

		doc := &content.Document{
			ID:            id,
			Title:         seed.Title,
			Body:          seed.Body,
			Permalink:     seed.Permalink,
			CreatedAt:     seed.CreatedAt,
			RevisionCount: seed.RevisionCount,
			CommentCount:  seed.CommentCount,
			TaxonomyTerms: seed.TaxonomyTerms,
			HasTaxonomies: seed.HasTaxonomies,
			Status:        content.StatusPublished,
		}

		if err := docs.Upsert(doc); err != nil {
			return nil, fmt.Errorf("failed to load content file: %w", err)
		}
	}

	logger.WithField("docs", len(seeds)).Info("loaded documents into in-memory content store")

	return docs, nil
}
