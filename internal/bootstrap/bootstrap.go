package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/thesis-analysis/internal/config"
	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
	"github.com/kirillkom/thesis-analysis/internal/core/usecase"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/extractor/multiformat"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/lock/local"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/lock/redislock"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/queue/nats"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/repository/memory"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/repository/mongodb"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/resilience"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/storage/minioblob"
	"github.com/kirillkom/thesis-analysis/internal/observability/metrics"
)

const workerService = "worker"

type queueBackend interface {
	ports.AnalysisTrigger
	ports.AnalysisRequestSource
}

type App struct {
	Config config.Config

	Repo      ports.DocumentRepository
	Blobs     ports.BlobStore
	Queue     queueBackend
	Inproc    bool
	SubmitUC  *usecase.SubmitDocumentUseCase
	AnalyzeUC *usecase.AnalyzeDocumentUseCase
	QueryUC   *usecase.AnalysisQueryUseCase

	WorkerMetrics *metrics.WorkerMetrics

	closers []func()
}

// New wires every backend selected in cfg. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	app := &App{
		Config:        cfg,
		WorkerMetrics: metrics.NewWorkerMetrics(workerService),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if app.Repo, err = app.openRepository(ctx); err != nil {
		return nil, err
	}
	if app.Blobs, err = openBlobStore(ctx, cfg); err != nil {
		return nil, err
	}
	if app.Queue, err = app.openQueue(); err != nil {
		return nil, err
	}
	locker, err := app.openLocker(ctx)
	if err != nil {
		return nil, err
	}
	analyzer, err := app.openAnalyzer(ctx)
	if err != nil {
		return nil, err
	}

	extractor := multiformat.NewDefault()
	app.SubmitUC = usecase.NewSubmitDocumentUseCase(app.Repo, app.Blobs, app.Queue, extractor)
	app.QueryUC = usecase.NewAnalysisQueryUseCase(app.Repo, app.Queue)
	app.AnalyzeUC = usecase.NewAnalyzeDocumentUseCase(
		app.Repo,
		app.Blobs,
		extractor,
		analyzer,
		usecase.WithAnalysisTimeout(cfg.AnalysisTimeout()),
		usecase.WithAnalysisLocker(locker),
		usecase.WithAnalysisLogger(slog.Default()),
	)
	return app, nil
}

func (a *App) openRepository(ctx context.Context) (ports.DocumentRepository, error) {
	switch backend := strings.ToLower(a.Config.StoreBackend); backend {
	case "postgres", "":
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		repo := postgres.NewDocumentRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "mongo", "mongodb":
		client, err := mongodb.Connect(ctx, a.Config.MongoURI, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.onClose(func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})
		repo := mongodb.NewDocumentRepository(client.Database(a.Config.MongoDatabase).Collection(a.Config.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return repo, nil
	case "memory":
		return memory.NewDocumentRepository(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}

func openBlobStore(ctx context.Context, cfg config.Config) (ports.BlobStore, error) {
	switch backend := strings.ToLower(cfg.BlobBackend); backend {
	case "localfs", "":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return storage, nil
	case "minio":
		storage, err := minioblob.New(ctx, minioblob.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", backend)
	}
}

func (a *App) openQueue() (queueBackend, error) {
	switch backend := strings.ToLower(a.Config.QueueBackend); backend {
	case "nats", "":
		queue, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
			Concurrency:        a.Config.AnalysisWorkerConcurrency,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.onClose(queue.Close)
		return queue, nil
	case "inproc":
		a.Inproc = true
		return inproc.New(a.Config.InprocBuffer, a.Config.InprocWorkers), nil
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", backend)
	}
}

func (a *App) openLocker(ctx context.Context) (ports.AnalysisLocker, error) {
	switch backend := strings.ToLower(a.Config.LockBackend); backend {
	case "local", "":
		return local.NewLocker(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		a.onClose(func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return redislock.New(client, a.Config.LockTTL()), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", backend)
	}
}

func (a *App) openAnalyzer(ctx context.Context) (ports.ContentAnalyzer, error) {
	policy := resilience.AnalysisConfig()
	policy.BreakerEnabled = a.Config.AnalysisBreakerEnabled
	policy.RateLimitRPS = a.Config.AnalysisRateLimitRPS
	policy.RateLimitBurst = a.Config.AnalysisRateLimitBurst
	executor := resilience.NewExecutor(policy)

	switch backend := strings.ToLower(a.Config.AnalyzerBackend); backend {
	case "ollama", "":
		return ollama.NewAnalyzer(
			ollama.New(a.Config.OllamaURL, a.Config.OllamaModel),
			ollama.WithExecutor(executor),
			ollama.WithLimits(a.Config.AnalysisMaxInputChars, a.Config.AnalysisSummaryMaxWords),
		), nil
	case "gemini":
		if a.Config.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for ANALYZER_BACKEND=gemini")
		}
		analyzer, err := gemini.New(ctx, a.Config.GeminiAPIKey, a.Config.GeminiModel,
			gemini.WithExecutor(executor),
			gemini.WithLimits(a.Config.AnalysisMaxInputChars, a.Config.AnalysisSummaryMaxWords),
		)
		if err != nil {
			return nil, fmt.Errorf("init gemini analyzer: %w", err)
		}
		a.onClose(func() { _ = analyzer.Close() })
		return analyzer, nil
	default:
		return nil, fmt.Errorf("unknown ANALYZER_BACKEND %q", backend)
	}
}

// HandleAnalysisRequest runs one queued request and records worker metrics.
func (a *App) HandleAnalysisRequest(ctx context.Context, req domain.AnalysisRequest) error {
	if !req.RequestedAt.IsZero() {
		a.WorkerMetrics.ObserveQueueLag(workerService, time.Since(req.RequestedAt))
	}
	runCtx, cancel := context.WithTimeout(ctx, a.Config.AnalysisTimeout()+time.Minute)
	defer cancel()

	a.WorkerMetrics.StartAnalysis()
	startedAt := time.Now()
	status, err := a.AnalyzeUC.RunAnalysis(runCtx, req.DocumentID)

	outcome := string(status)
	switch {
	case domain.IsKind(err, domain.ErrStaleAttempt):
		outcome = "superseded"
		err = nil
	case err != nil:
		outcome = "error"
	}
	a.WorkerMetrics.FinishAnalysis(workerService, outcome, time.Since(startedAt))
	return err
}

// RunWorkers consumes analysis requests until ctx ends.
func (a *App) RunWorkers(ctx context.Context) error {
	return a.Queue.SubscribeAnalysisRequests(ctx, a.HandleAnalysisRequest)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
