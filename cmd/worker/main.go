package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"delivery-network-engine/internal/generator"
	"delivery-network-engine/internal/repos"
	"delivery-network-engine/internal/tasks"
	"delivery-network-engine/shared/cachex"
	"delivery-network-engine/shared/config"
	"delivery-network-engine/shared/dbx"
	"delivery-network-engine/shared/events"
	"delivery-network-engine/shared/lockx"
	"delivery-network-engine/shared/logx"
	"delivery-network-engine/shared/metricsx"
	"delivery-network-engine/shared/mqx"
	"delivery-network-engine/shared/observability"
)

const generateLockTTL = 2 * time.Minute

func main() {
	cfg, problems := config.Load("generation-worker", 8081)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	networksRepo := repos.NewNetworksRepo(dbPool)
	if err := networksRepo.EnsureSchema(context.Background()); err != nil {
		logger.Error(context.Background(), "schema_init_failed", "schema init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "kafka producer init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if producer != nil {
		defer producer.Close()
	}

	var cacheClient *cachex.Client
	if cfg.RedisAddr != "" {
		cacheClient, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeNetworkGenerate, func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("asynq").Start(ctx, tasks.TypeNetworkGenerate)
		span.SetAttributes(attribute.String("queue", cfg.AsynqQueue))
		defer span.End()

		var payload tasks.GeneratePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		if err := payload.Validate(); err != nil {
			logger.Warn(ctx, "generate_task_invalid", "dropping invalid generation task",
				slog.Int("num_customers", payload.NumCustomers),
				slog.String("error", err.Error()),
			)
			return nil
		}

		// Lock dedupes a task retried or enqueued twice: only one
		// worker generates a given name+seed combination.
		if cacheClient != nil {
			key := "generate:" + payload.Name + ":" + strconv.FormatInt(payload.Seed, 10)
			lock, acquired, err := lockx.Acquire(ctx, cacheClient.Client(), key, generateLockTTL)
			if err != nil {
				return err
			}
			if !acquired {
				logger.Info(ctx, "generate_task_duplicate", "generation already in progress",
					slog.String("name", payload.Name),
					slog.Int64("seed", payload.Seed),
				)
				return nil
			}
			defer func() { _ = lockx.Release(context.Background(), cacheClient.Client(), lock) }()
		}

		gen := generator.New(generator.DefaultRegion(), rand.New(rand.NewSource(payload.Seed)))
		net, err := gen.Generate(generator.Params{
			NumCustomers: payload.NumCustomers,
			Name:         payload.Name,
			HubCount:     cfg.GenHubCount,
			FanoutLimit:  cfg.GenFanoutLimit,
			SafetyMargin: cfg.GenSafetyMargin,
			RepairMax:    cfg.GenRepairMax,
		})
		if err != nil {
			var genErr *generator.GenerationError
			if errors.As(err, &genErr) {
				logger.Warn(ctx, "generate_task_rejected", "generation rejected",
					slog.String("name", payload.Name),
					slog.String("error", genErr.Error()),
				)
				return nil
			}
			return err
		}

		if err := networksRepo.Save(ctx, net); err != nil {
			return err
		}

		if producer != nil {
			body, _ := json.Marshal(map[string]any{
				"name":          net.Name,
				"num_customers": payload.NumCustomers,
				"seed":          payload.Seed,
				"request_id":    payload.RequestID,
				"source":        cfg.ServiceName,
			})
			envelope := events.NewEnvelope("network", net.ID, events.EventNetworkCreated, body)
			data, _ := json.Marshal(envelope)
			_ = producer.Publish(ctx, events.TopicNetworkLifecycle, []byte(net.ID.String()), data, map[string]string{
				"event_type": events.EventNetworkCreated,
			})
		}

		logger.Info(ctx, "network_generated", "network generated and persisted",
			slog.String("network_id", net.ID.String()),
			slog.String("name", net.Name),
			slog.Int("customers", payload.NumCustomers),
			slog.Int64("seed", payload.Seed),
		)
		return nil
	})

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "generation worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "worker_stop", "generation worker stopped")
}
