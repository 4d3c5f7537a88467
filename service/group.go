package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Service describes a long-running component of the simple-search
// application.
type Service interface {
	// Name returns the name of the service.
	Name() string

	// Run executes the service and blocks until the context gets cancelled
	// or an error occurs.
	Run(context.Context) error
}

// Group is a list of Service instances that can execute in parallel.
type Group []Service

// Func adapts a bare run function into a Service.
func Func(name string, run func(context.Context) error) Service {
	return funcService{name: name, run: run}
}

type funcService struct {
	name string
	run  func(context.Context) error
}

func (s funcService) Name() string                  { return s.name }
func (s funcService) Run(ctx context.Context) error { return s.run(ctx) }

// Execute runs every Service of the group in its own goroutine and
// blocks until all of them have returned. A service error cancels the
// shared context, bringing the rest of the group down; the accumulated
// errors, each prefixed with the failing service's name, are returned.
func (g Group) Execute(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)

	for _, svc := range g {
		wg.Add(1)

		go func(svc Service) {
			defer wg.Done()

			if err := svc.Run(runCtx); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
				mu.Unlock()

				cancelFn()
			}
		}(svc)
	}

	wg.Wait()

	return errs.ErrorOrNil()
}
