package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// TriggerFunc starts a scheduled run of a suite.
type TriggerFunc func(ctx context.Context, testID string)

// Local triggers active suites from an in-process cron.
type Local struct {
	trigger TriggerFunc
	logger  *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
	started bool
}

// NewLocal creates a stopped scheduler.
func NewLocal(trigger TriggerFunc, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		trigger: trigger,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Load replaces all registered entries with one per active suite with a
// valid schedule. Safe to call while running.
func (l *Local) Load(suites []domain.TestSuite) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	entries := make(map[string]cron.EntryID, len(suites))
	for _, s := range suites {
		if s.Status != domain.SuiteStatusActive {
			continue
		}
		testID := s.ID
		id, err := next.AddFunc(s.Schedule, func() {
			l.logger.Info("scheduled run", zap.String("test_id", testID))
			l.trigger(l.runContext(), testID)
		})
		if err != nil {
			l.logger.Warn("skipping suite with invalid schedule",
				zap.String("test_id", testID), zap.String("schedule", s.Schedule), zap.Error(err))
			continue
		}
		entries[testID] = id
	}

	if l.cron != nil {
		l.cron.Stop()
	}
	l.cron = next
	l.entries = entries
	if l.started {
		l.cron.Start()
	}
	l.logger.Info("schedule loaded", zap.Int("entries", len(entries)))
}

// Entries returns the registered test ids.
func (l *Local) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for id := range l.entries {
		out = append(out, id)
	}
	return out
}

// Run starts the cron and blocks until ctx is done, then waits for running
// jobs to return.
func (l *Local) Run(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.started = true
	if l.cron == nil {
		l.cron = cron.New()
	}
	l.cron.Start()
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	stopped := l.cron.Stop()
	l.started = false
	l.ctx = context.Background()
	l.mu.Unlock()
	<-stopped.Done()
	return nil
}

func (l *Local) runContext() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctx
}
