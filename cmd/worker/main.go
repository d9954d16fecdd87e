package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jien0404/zalo-legal-chatbot/internal/bootstrap"
	"github.com/jien0404/zalo-legal-chatbot/internal/config"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/queue/nats"
	"github.com/jien0404/zalo-legal-chatbot/internal/observability/logging"
	"github.com/jien0404/zalo-legal-chatbot/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("legal-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("legal-worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    "legal-worker",
		Registerer: workerMetrics.Registerer(),
	})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Name: "legal-worker"})
	if err != nil {
		slog.Error("nats_connect_error", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !app.Knowledge.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()

	err = queue.Serve(ctx, app.Answerer, nats.ServeOptions{
		QueueGroup:     cfg.NATSQueueGroup,
		RequestTimeout: cfg.RequestTimeout,
		Service:        "legal-worker",
		Recorder:       workerMetrics,
	})
	if err != nil {
		slog.Error("worker_serve_error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
