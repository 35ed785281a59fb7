package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ronalddlopez/housecat/internal/adapter/agents"
	"github.com/ronalddlopez/housecat/internal/adapter/archive"
	"github.com/ronalddlopez/housecat/internal/adapter/automation"
	"github.com/ronalddlopez/housecat/internal/adapter/llm"
	"github.com/ronalddlopez/housecat/internal/adapter/notify"
	"github.com/ronalddlopez/housecat/internal/adapter/webhook"
	"github.com/ronalddlopez/housecat/internal/alert"
	"github.com/ronalddlopez/housecat/internal/config"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/eventlog"
	"github.com/ronalddlopez/housecat/internal/livestream"
	"github.com/ronalddlopez/housecat/internal/metrics"
	"github.com/ronalddlopez/housecat/internal/pipeline"
	"github.com/ronalddlopez/housecat/internal/repository"
	"github.com/ronalddlopez/housecat/internal/results"
	"github.com/ronalddlopez/housecat/internal/scheduler"
	"github.com/ronalddlopez/housecat/internal/service"
	handler "github.com/ronalddlopez/housecat/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// App is a fully wired housecat server.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *config.Registry
	service   *service.Service
	server    *echo.Echo
	scheduler *scheduler.Local
	closers   []func()
}

// NewApp builds every component from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	a.onClose(func() { _ = store.Close() })

	deps := map[string]handler.Pinger{"database": store}

	log, err := a.eventLog(store, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	suites, err := config.LoadSuites(cfg.SuitesFile, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = config.NewRegistry(suites)
	logger.Info("suites loaded", zap.String("path", cfg.SuitesFile), zap.Int("count", len(suites)))

	policy, err := alert.NewEngineFromFile(ctx, cfg.AlertPolicyFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize alert policy: %w", err)
	}

	collector := metrics.NewCollector()

	sdeps := service.Deps{
		Store:    results.New(store, cfg.IncidentLimit),
		Suites:   a.registry,
		Pipeline: newOrchestrator(cfg, logger, log, collector),
		EventLog: log,
		Alerts:   webhook.NewSender(cfg.WebhookTimeout, logger.Named("webhook")),
		Policy:   policy,
		Metrics:  collector,
		Logger:   logger,
	}

	if cfg.NATSURL != "" {
		pub, closeFn, err := notify.Connect(cfg.NATSURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.onClose(closeFn)
		sdeps.Publisher = pub
		logger.Info("publishing runs to nats", zap.String("url", cfg.NATSURL))
	}

	if cfg.ArchiveEnabled() {
		arc, err := archive.NewMinio(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveUseSSL)
		if err != nil {
			a.Close()
			return nil, err
		}
		sdeps.Archiver = arc
		logger.Info("archiving runs", zap.String("endpoint", cfg.ArchiveEndpoint), zap.String("bucket", cfg.ArchiveBucket))
	}

	a.service = service.New(sdeps)

	if cfg.SchedulerMode == config.SchedulerLocal {
		a.scheduler = scheduler.NewLocal(a.trigger, logger.Named("scheduler"))
		a.scheduler.Load(suites)
	}

	streamer := livestream.NewStreamer(log, cfg.StreamInterval, logger.Named("livestream"))
	a.server = handler.NewServer(handler.Options{
		Service: a.service,
		Live:    livestream.NewHandler(streamer, collector, logger.Named("livestream")),
		Metrics: collector.Handler(),
		Health: handler.HealthConfig{
			PublicURL:    cfg.PublicURL,
			Dependencies: deps,
			Keys: map[string]bool{
				"automation": cfg.AutomationConfigured(),
				"llm":        cfg.LLMConfigured(),
			},
		},
		Logger: logger,
	})

	// Live streams idle for minutes; end them when shutdown starts so the
	// graceful shutdown does not wait them out.
	streamsCtx, endStreams := context.WithCancel(context.Background())
	a.server.Server.BaseContext = func(net.Listener) context.Context { return streamsCtx }
	a.server.Server.RegisterOnShutdown(endStreams)
	a.onClose(endStreams)

	return a, nil
}

func (a *App) eventLog(store *repository.SQLiteStore, deps map[string]handler.Pinger) (eventlog.Log, error) {
	switch a.cfg.EventLogBackend {
	case config.BackendMemory:
		return eventlog.NewMemory(), nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.onClose(func() { _ = client.Close() })
		deps["event_log"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return eventlog.NewRedis(client), nil
	case config.BackendSQLite, "":
		return store, nil
	default:
		return nil, fmt.Errorf("unknown event log backend %q", a.cfg.EventLogBackend)
	}
}

// newOrchestrator builds the pipeline. log and hooks may be nil.
func newOrchestrator(cfg *config.Config, logger *zap.Logger, log eventlog.Log, hooks pipeline.Hooks) *pipeline.Orchestrator {
	mode := strings.ToUpper(cfg.Mode)
	client := llm.NewLLMClient(mode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
	auto := automation.New(mode, cfg.AutomationURL, cfg.AutomationAPIKey, cfg.AutomationTimeout, logger.Named("automation"))
	executor := pipeline.NewStepExecutor(auto, pipeline.ParseExecutionMode(cfg.ExecutionMode), logger.Named("executor"))

	opts := []pipeline.Option{pipeline.WithLogger(logger.Named("pipeline"))}
	if log != nil {
		opts = append(opts, pipeline.WithEventLog(log))
	}
	if hooks != nil {
		opts = append(opts, pipeline.WithHooks(hooks))
	}
	return pipeline.NewOrchestrator(agents.NewPlanner(client), executor, agents.NewEvaluator(client), opts...)
}

func (a *App) trigger(ctx context.Context, testID string) {
	if _, err := a.service.RunSuite(ctx, testID, domain.TriggeredByScheduler); err != nil {
		a.logger.Warn("scheduled run failed", zap.String("test_id", testID), zap.Error(err))
	}
}

func (a *App) reload(suites []domain.TestSuite) {
	if a.scheduler != nil {
		a.scheduler.Load(suites)
	}
}

// Serve runs the HTTP server, the suites watcher and the local scheduler
// until ctx is done, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf(":%d", a.cfg.HTTPPort)
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", addr))
		if err := a.server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := config.WatchSuites(gctx, a.cfg.SuitesFile, a.registry, 0, a.logger.Named("suites"), a.reload)
		if err != nil {
			a.logger.Warn("suites watcher disabled", zap.Error(err))
		}
		return nil
	})

	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(gctx)
		})
	}

	return g.Wait()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}
