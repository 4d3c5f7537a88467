package search

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/findingsimple/simple-search/content"
	"github.com/findingsimple/simple-search/excerpt"
	"github.com/findingsimple/simple-search/lifecycle"
	"github.com/findingsimple/simple-search/store"
)

const defaultNumOfResultsPerPage = 10

// Config defines configurations for the search service.
type Config struct {
	// Docs is the content source queried for candidate documents.
	Docs content.Store

	// Scores provides the cached relevance scores used to order
	// results.
	Scores store.ScoreStore

	// Lifecycle reacts to searches: tally bookkeeping, lazy corpus
	// scoring and index rebuilds.
	Lifecycle *lifecycle.Manager

	// Excerpts builds the contextual result excerpts.
	Excerpts *excerpt.Builder

	// Port to listen for incoming requests.
	ListenAddr string

	// Number of results per page. If not specified, a default value of 10 results
	// per page will be used instead.
	NumOfResultsPerPage int

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.Docs == nil {
		err = multierror.Append(err, fmt.Errorf("document store not provided"))
	}

	if config.Scores == nil {
		err = multierror.Append(err, fmt.Errorf("score store not provided"))
	}

	if config.Lifecycle == nil {
		err = multierror.Append(err, fmt.Errorf("lifecycle manager not provided"))
	}

	if config.Excerpts == nil {
		err = multierror.Append(err, fmt.Errorf("excerpt builder not provided"))
	}

	if config.ListenAddr == "" {
		err = multierror.Append(err, fmt.Errorf("listen address not provided"))
	}

	if config.NumOfResultsPerPage <= 0 {
		config.NumOfResultsPerPage = defaultNumOfResultsPerPage
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}
