package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/thesis-analysis/internal/adapters/http"
	"github.com/kirillkom/thesis-analysis/internal/bootstrap"
	"github.com/kirillkom/thesis-analysis/internal/config"
	"github.com/kirillkom/thesis-analysis/internal/observability/logging"
	"github.com/kirillkom/thesis-analysis/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := httpadapter.LoadOpenAPISpec(ctx); err != nil {
		logger.Error("openapi spec invalid", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// With the in-process queue the API is also the worker.
	workersDone := make(chan struct{})
	if app.Inproc {
		go func() {
			defer close(workersDone)
			if err := app.RunWorkers(ctx); err != nil {
				logger.Error("analysis workers stopped", "error", err)
			}
		}()
	} else {
		close(workersDone)
	}

	router := httpadapter.NewRouter(
		cfg,
		app.SubmitUC,
		app.QueryUC,
		app.Repo,
		httpadapter.WithMetrics(metrics.NewHTTPServerMetrics("api")),
	).Handler()
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api listen error", "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort, "queue", cfg.QueueBackend)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
	<-workersDone
}
