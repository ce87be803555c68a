package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is an external resource the worker needs before it can consume batches
type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

type Startup struct {
	dependencies map[string]Dependency
	order        []string
	started      []string
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	backoffUnit  time.Duration
}

type Option func(*Startup)

// WithBackoffUnit scales the fibonacci retry delay (default one second)
func WithBackoffUnit(unit time.Duration) Option {
	return func(s *Startup) {
		s.backoffUnit = unit
	}
}

func NewStartup(logger ectologger.Logger, maxAttempts int, opts ...Option) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s := &Startup{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
		backoffUnit:  time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Startup) AddDependency(dependency Dependency) {
	if _, ok := s.dependencies[dependency.GetName()]; !ok {
		s.order = append(s.order, dependency.GetName())
	}
	s.dependencies[dependency.GetName()] = dependency
}

func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start brings up every dependency after the ones it depends on, retrying the
// whole pass with fibonacci backoff until maxAttempts is reached.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error
	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = s.startAll(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.backoffUnit
		s.logger.Infof("Retrying in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startAll(ctx context.Context) error {
	for _, name := range s.order {
		if err := s.startDependency(ctx, name, map[string]bool{}); err != nil {
			s.logger.WithError(err).Errorf("Startup dependency '%s' failed", name)
			return err
		}
	}
	return nil
}

func (s *Startup) startDependency(ctx context.Context, name string, visiting map[string]bool) error {
	if s.statuses[name] == StatusStarted {
		return nil
	}
	dependency, ok := s.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown startup dependency '%s'", name)
	}
	if visiting[name] {
		return fmt.Errorf("startup dependency cycle at '%s'", name)
	}
	visiting[name] = true

	for _, upstream := range dependency.DependsOn() {
		if err := s.startDependency(ctx, upstream, visiting); err != nil {
			return err
		}
	}

	log := s.logger.WithField("dependency", name)
	log.Infof("Starting dependency '%s'", name)
	s.statuses[name] = StatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		log.WithError(err).Errorf("Failed to start dependency '%s'", name)
		return err
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop tears dependencies down in reverse start order. Every dependency is
// attempted; the first error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		log := s.logger.WithField("dependency", name)
		log.Infof("Stopping dependency '%s'", name)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = StatusStopped
	}
	s.started = nil
	return firstErr
}

// Func adapts a pair of closures into a Dependency
type Func struct {
	Name      string
	Requires  []string
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

func (f *Func) GetName() string     { return f.Name }
func (f *Func) DependsOn() []string { return f.Requires }

func (f *Func) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}
