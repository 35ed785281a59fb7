package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/alert"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/metrics"
	"github.com/ronalddlopez/housecat/internal/pipeline"
)

// RunResult is what a suite trigger produced.
type RunResult struct {
	Skipped bool              `json:"skipped,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Outcome *pipeline.Outcome `json:"-"`
	Run     *domain.RunRecord `json:"-"`
	Alerted bool              `json:"alerted,omitempty"`
}

// RunSuite runs a registered suite and records the outcome. Scheduled runs
// of paused suites are skipped. Persistence, publication, archival and
// alerting failures are logged and never fail the run.
func (s *Service) RunSuite(ctx context.Context, testID string, triggeredBy domain.TriggeredBy) (*RunResult, error) {
	suite, ok := s.suites.Get(testID)
	if !ok {
		return nil, ErrSuiteNotFound
	}
	logger := s.logger.With(zap.String("test_id", testID), zap.String("triggered_by", string(triggeredBy)))

	if triggeredBy == domain.TriggeredByScheduler && suite.Status == domain.SuiteStatusPaused {
		logger.Info("skipping paused suite")
		s.metrics.ObserveRun(metrics.OutcomeSkipped, triggeredBy)
		return &RunResult{Skipped: true, Reason: "test is paused"}, nil
	}

	if _, busy := s.inflight.LoadOrStore(testID, struct{}{}); busy {
		return nil, ErrRunInProgress
	}
	defer s.inflight.Delete(testID)

	// A trigger that goes away only loses its response; the run and its
	// persistence continue on a detached context.
	bg := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithTimeout(bg, s.timeout)
	defer cancel()

	outcome, err := s.pipeline.Run(runCtx, pipeline.RunInput{
		TestID:    suite.ID,
		URL:       suite.URL,
		Goal:      suite.Goal,
		Variables: suite.Variables,
	})

	if err != nil {
		s.metrics.ObserveRun(metrics.OutcomeError, triggeredBy)
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			logger = logger.With(zap.String("phase", string(perr.Phase)))
		}
		logger.Error("run errored", zap.Error(err))
		if merr := s.store.MarkErrored(bg, testID); merr != nil {
			logger.Warn("failed to mark suite errored", zap.Error(merr))
		}
		return nil, err
	}

	run, err := s.store.StoreRun(bg, testID, outcome.Result, &outcome.Plan, &outcome.Browser, triggeredBy)
	if err != nil {
		logger.Warn("run partially persisted", zap.String("run_id", run.RunID), zap.Error(err))
	}
	logger = logger.With(zap.String("run_id", run.RunID))

	status := metrics.OutcomeFailed
	if run.Passed {
		status = metrics.OutcomePassed
	}
	s.metrics.ObserveRun(status, triggeredBy)
	logger.Info("run completed", zap.Bool("passed", run.Passed), zap.Int64("duration_ms", run.DurationMs))

	s.fanOut(bg, run, logger)
	alerted := s.maybeAlert(bg, suite, run, logger)

	return &RunResult{Outcome: outcome, Run: &run, Alerted: alerted}, nil
}

// RunAdHoc runs a check that is not registered: no event log, no storage.
func (s *Service) RunAdHoc(ctx context.Context, url, goal string, variables []domain.Variable) (*pipeline.Outcome, error) {
	outcome, err := s.pipeline.Run(ctx, pipeline.RunInput{URL: url, Goal: goal, Variables: variables})
	if err != nil {
		s.metrics.ObserveRun(metrics.OutcomeError, domain.TriggeredByAPI)
		return nil, err
	}
	status := metrics.OutcomeFailed
	if outcome.Result.Passed {
		status = metrics.OutcomePassed
	}
	s.metrics.ObserveRun(status, domain.TriggeredByAPI)
	return outcome, nil
}

func (s *Service) fanOut(ctx context.Context, run domain.RunRecord, logger *zap.Logger) {
	if s.publisher != nil {
		if err := s.publisher.PublishRun(ctx, run); err != nil {
			logger.Warn("failed to publish run", zap.Error(err))
		}
	}
	if s.archiver != nil {
		key, err := s.archiver.Archive(ctx, run)
		if err != nil {
			logger.Warn("failed to archive run", zap.Error(err))
		} else {
			logger.Debug("run archived", zap.String("key", key))
		}
	}
}

func (s *Service) maybeAlert(ctx context.Context, suite domain.TestSuite, run domain.RunRecord, logger *zap.Logger) bool {
	if s.alerts == nil || run.Passed {
		return false
	}

	decision := alert.DecisionAlert
	if suite.AlertWebhook == "" {
		decision = alert.DecisionSuppress
	}
	if s.policy != nil {
		streak, err := s.store.FailureStreak(ctx, suite.ID)
		if err != nil {
			logger.Warn("failed to read failure streak", zap.Error(err))
			streak = 1
		}
		decision, err = s.policy.Decide(ctx, alert.NewInput(suite, run, streak))
		if err != nil {
			logger.Error("alert policy failed", zap.Error(err))
			return false
		}
	}
	if decision != alert.DecisionAlert {
		logger.Debug("alert suppressed")
		return false
	}

	delivered := s.alerts.Send(ctx, suite.AlertWebhook, suite, run)
	s.metrics.ObserveAlert(delivered)
	if !delivered {
		return false
	}
	if err := s.store.MarkIncidentAlerted(ctx, suite.ID, run.RunID); err != nil {
		logger.Warn("failed to mark incident alerted", zap.Error(err))
	}
	logger.Info("alert sent")
	return true
}
