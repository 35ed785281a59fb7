// Package service wires the pipeline, the result store and the alerting
// collaborators into the run triggers.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/alert"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/eventlog"
	"github.com/ronalddlopez/housecat/internal/pipeline"
	"github.com/ronalddlopez/housecat/internal/results"
)

var (
	// ErrSuiteNotFound is returned for an unknown test id.
	ErrSuiteNotFound = errors.New("test suite not found")
	// ErrRunInProgress is returned when the suite already has a live run.
	ErrRunInProgress = errors.New("a run of this suite is already in progress")
)

// Suites looks up registered test suites.
type Suites interface {
	Get(id string) (domain.TestSuite, bool)
	List() []domain.TestSuite
}

// Pipeline runs one check.
type Pipeline interface {
	Run(ctx context.Context, in pipeline.RunInput) (*pipeline.Outcome, error)
}

// AlertSender delivers a failure alert and reports success.
type AlertSender interface {
	Send(ctx context.Context, url string, suite domain.TestSuite, run domain.RunRecord) bool
}

// AlertPolicy decides whether a stored run alerts.
type AlertPolicy interface {
	Decide(ctx context.Context, in alert.Input) (alert.Decision, error)
}

// RunPublisher announces stored runs.
type RunPublisher interface {
	PublishRun(ctx context.Context, run domain.RunRecord) error
}

// RunArchiver copies stored runs to long-term storage.
type RunArchiver interface {
	Archive(ctx context.Context, run domain.RunRecord) (string, error)
}

// Metrics counts run and alert outcomes.
type Metrics interface {
	ObserveRun(status string, triggeredBy domain.TriggeredBy)
	ObserveAlert(delivered bool)
}

// DefaultRunTimeout bounds a suite run once it has been detached from its
// trigger.
const DefaultRunTimeout = 15 * time.Minute

// Deps are the collaborators of a Service. Alerts, Policy, Publisher,
// Archiver and Metrics are optional.
type Deps struct {
	Store     *results.Store
	Suites    Suites
	Pipeline  Pipeline
	EventLog  eventlog.Log
	Alerts    AlertSender
	Policy    AlertPolicy
	Publisher RunPublisher
	Archiver  RunArchiver
	Metrics   Metrics
	Logger    *zap.Logger

	// RunTimeout bounds each suite run. Zero means DefaultRunTimeout.
	RunTimeout time.Duration
}

// Service runs suites on demand and on schedule.
type Service struct {
	store     *results.Store
	suites    Suites
	pipeline  Pipeline
	log       eventlog.Log
	alerts    AlertSender
	policy    AlertPolicy
	publisher RunPublisher
	archiver  RunArchiver
	metrics   Metrics
	logger    *zap.Logger
	timeout   time.Duration

	inflight sync.Map
}

// New creates a Service.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var m Metrics = nopMetrics{}
	if deps.Metrics != nil {
		m = deps.Metrics
	}
	timeout := deps.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Service{
		store:     deps.Store,
		suites:    deps.Suites,
		pipeline:  deps.Pipeline,
		log:       deps.EventLog,
		alerts:    deps.Alerts,
		policy:    deps.Policy,
		publisher: deps.Publisher,
		archiver:  deps.Archiver,
		metrics:   m,
		logger:    logger.Named("service"),
		timeout:   timeout,
	}
}

// Store returns the result store.
func (s *Service) Store() *results.Store {
	return s.store
}

// Suites returns the suite registry.
func (s *Service) Suites() Suites {
	return s.suites
}

// EventLog returns the event log, or nil.
func (s *Service) EventLog() eventlog.Log {
	return s.log
}

type nopMetrics struct{}

func (nopMetrics) ObserveRun(string, domain.TriggeredBy) {}
func (nopMetrics) ObserveAlert(bool)                     {}
