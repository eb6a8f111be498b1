package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"delivery-network-engine/internal/registry"
	"delivery-network-engine/internal/repos"
	"delivery-network-engine/shared/cachex"
	"delivery-network-engine/shared/config"
	"delivery-network-engine/shared/dbx"
	"delivery-network-engine/shared/httpx"
	"delivery-network-engine/shared/influxx"
	"delivery-network-engine/shared/logx"
	"delivery-network-engine/shared/metricsx"
	"delivery-network-engine/shared/mqx"
	"delivery-network-engine/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("engine", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	var shutdownTracer func(context.Context) error
	if cfg.OtelEnabled {
		var err error
		shutdownTracer, err = observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Error(context.Background(), "otel_init_failed", "otel init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var dbPool *pgxpool.Pool
	var networksRepo *repos.NetworksRepo
	if cfg.DatabaseURL != "" {
		var err error
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if dbPool != nil {
		networksRepo = repos.NewNetworksRepo(dbPool)
		if err := networksRepo.EnsureSchema(context.Background()); err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to ensure schema"})
			logger.Error(context.Background(), "schema_init_failed", "schema init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		var err error
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: err.Error()})
			logger.Error(context.Background(), "kafka_init_failed", "kafka producer init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var cacheClient *cachex.Client
	if cfg.RedisAddr != "" {
		var err error
		cacheClient, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var influxClient *influxx.Client
	if cfg.InfluxURL != "" && cfg.InfluxToken != "" && cfg.InfluxOrg != "" && cfg.InfluxBucket != "" {
		var err error
		influxClient, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var asynqClient *asynq.Client
	if cfg.AsynqEnabled && cfg.AsynqRedisAddr != "" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPass,
			DB:       cfg.AsynqRedisDB,
		})
	}

	app := &app{
		cfg:         cfg,
		logger:      logger,
		registry:    registry.New(time.Duration(cfg.LockWaitMS) * time.Millisecond),
		repo:        networksRepo,
		producer:    producer,
		cache:       cacheClient,
		influx:      influxClient,
		asynqClient: asynqClient,
	}
	if networksRepo != nil {
		app.restoreNetworks(context.Background())
	}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if len(cfg.KafkaBrokers) > 0 && networksRepo != nil {
		go app.runLifecycleConsumer(consumerCtx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if dbPool != nil {
			if err := dbx.Ping(r.Context(), dbPool); err != nil {
				httpx.WriteError(
					w,
					r,
					http.StatusServiceUnavailable,
					"FAILED_PRECONDITION",
					"service not ready: database unavailable",
					map[string]any{"problem": "db_ping_failed"},
				)
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	mux.HandleFunc("POST /api/v1/networks", app.handleCreateNetwork)
	mux.HandleFunc("POST /api/v1/networks/import", app.handleImportNetwork)
	mux.HandleFunc("GET /api/v1/networks", app.handleListNetworks)
	mux.HandleFunc("GET /api/v1/networks/{id}/export", app.handleExportNetwork)
	mux.HandleFunc("GET /api/v1/networks/{id}/snapshot", app.handleLatestSnapshot)
	mux.HandleFunc("GET /api/v1/networks/{id}/telemetry", app.handleTelemetry)
	mux.HandleFunc("GET /api/v1/networks/{id}", app.handleNetworkSummary)
	mux.HandleFunc("DELETE /api/v1/networks/{id}", app.handleDeleteNetwork)
	mux.HandleFunc("POST /api/v1/networks/{id}/movement/start", app.handleMovementStart)
	mux.HandleFunc("POST /api/v1/networks/{id}/movement/stop", app.handleMovementStop)
	mux.HandleFunc("POST /api/v1/networks/{id}/movement/reset", app.handleMovementReset)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	handler := httpx.WrapServeMux(mux, notFound)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)

	// The snapshot stream outlives any request timeout and must not be
	// buffered, so it mounts outside the timeout wrapper.
	root := http.NewServeMux()
	root.HandleFunc("GET /api/v1/networks/{id}/stream", app.handleStream)
	root.Handle("/", handler)

	var outer http.Handler = root
	outer = httpx.WithRequestID(outer)
	outer = httpx.WithRecover(logger, outer)
	outer = metricsx.Instrument(outer)
	outer = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, outer)
	outer = otelhttp.NewHandler(outer, "http")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           outer,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
			slog.Int("sim_tick_ms", cfg.SimTickMS),
			slog.Int("registered_networks", app.registry.Len()),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	stopConsumer()
	app.registry.Shutdown()
	if asynqClient != nil {
		_ = asynqClient.Close()
	}
	if producer != nil {
		_ = producer.Close()
	}
	if cacheClient != nil {
		_ = cacheClient.Close()
	}
	if influxClient != nil {
		influxClient.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
