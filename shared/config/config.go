package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int
	KafkaBrokers     []string
	KafkaClientID    string
	KafkaGroupID     string
	KafkaRetryMax    int
	KafkaWriteMS     int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int
	AsynqEnabled     bool
	InfluxURL        string
	InfluxToken      string
	InfluxOrg        string
	InfluxBucket     string
	InfluxTimeoutMS  int
	SimTickMS        int
	SimSnapshotEvery int
	SimDwellTicks    int
	SimQueueSize     int
	TrafficFactorMin float64
	TrafficFactorMax float64
	GenSeed          int64
	GenHubCount      int
	GenFanoutLimit   int
	GenRepairMax     int
	GenSafetyMargin  float64
	LockWaitMS       int
	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelSampleRatio  float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:              envRaw,
		ServiceName:      serviceNameDefault,
		HTTPPort:         httpPortDefault,
		LogLevel:         "info",
		ConfigPath:       strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS: 30000,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       10,
		DBMinConns:       1,
		DBConnMaxIdleSec: 300,
		DBConnMaxLifeSec: 1800,
		KafkaBrokers:     nil,
		KafkaClientID:    "",
		KafkaGroupID:     "",
		KafkaRetryMax:    5,
		KafkaWriteMS:     5000,
		RedisAddr:        "",
		RedisPassword:    "",
		RedisDB:          0,
		AsynqRedisAddr:   "",
		AsynqRedisPass:   "",
		AsynqRedisDB:     0,
		AsynqQueue:       "default",
		AsynqConcurrency: 10,
		AsynqEnabled:     false,
		InfluxURL:        "",
		InfluxToken:      "",
		InfluxOrg:        "",
		InfluxBucket:     "",
		InfluxTimeoutMS:  5000,
		SimTickMS:        500,
		SimSnapshotEvery: 1,
		SimDwellTicks:    2,
		SimQueueSize:     16,
		TrafficFactorMin: 0.6,
		TrafficFactorMax: 1.1,
		GenSeed:          0,
		GenHubCount:      12,
		GenFanoutLimit:   8,
		GenRepairMax:     10,
		GenSafetyMargin:  1.2,
		LockWaitMS:       2000,
		OtelEnabled:      false,
		OtelEndpoint:     "",
		OtelInsecure:     true,
		OtelSampleRatio:  1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.AsynqConcurrency <= 0 {
		problems = append(problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.InfluxTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be > 0"})
		cfg.InfluxTimeoutMS = 5000
	}
	if cfg.SimTickMS <= 0 {
		problems = append(problems, Problem{Field: "SIM_TICK_MS", Message: "SIM_TICK_MS must be > 0"})
		cfg.SimTickMS = 500
	}
	if cfg.SimSnapshotEvery <= 0 {
		problems = append(problems, Problem{Field: "SIM_SNAPSHOT_EVERY_TICKS", Message: "SIM_SNAPSHOT_EVERY_TICKS must be > 0"})
		cfg.SimSnapshotEvery = 1
	}
	if cfg.SimDwellTicks < 0 {
		problems = append(problems, Problem{Field: "SIM_DWELL_TICKS", Message: "SIM_DWELL_TICKS must be >= 0"})
		cfg.SimDwellTicks = 2
	}
	if cfg.SimQueueSize <= 0 {
		problems = append(problems, Problem{Field: "SIM_SUBSCRIBER_QUEUE_SIZE", Message: "SIM_SUBSCRIBER_QUEUE_SIZE must be > 0"})
		cfg.SimQueueSize = 16
	}
	if cfg.TrafficFactorMin <= 0 {
		problems = append(problems, Problem{Field: "SIM_TRAFFIC_FACTOR_MIN", Message: "SIM_TRAFFIC_FACTOR_MIN must be > 0"})
		cfg.TrafficFactorMin = 0.6
	}
	if cfg.TrafficFactorMax < cfg.TrafficFactorMin {
		problems = append(problems, Problem{Field: "SIM_TRAFFIC_FACTOR_MAX", Message: "SIM_TRAFFIC_FACTOR_MAX must be >= SIM_TRAFFIC_FACTOR_MIN"})
		cfg.TrafficFactorMax = cfg.TrafficFactorMin
	}
	if cfg.GenHubCount <= 0 {
		problems = append(problems, Problem{Field: "GEN_HUB_COUNT", Message: "GEN_HUB_COUNT must be > 0"})
		cfg.GenHubCount = 12
	}
	if cfg.GenFanoutLimit <= 0 {
		problems = append(problems, Problem{Field: "GEN_FANOUT_LIMIT", Message: "GEN_FANOUT_LIMIT must be > 0"})
		cfg.GenFanoutLimit = 8
	}
	if cfg.GenRepairMax <= 0 {
		problems = append(problems, Problem{Field: "GEN_REPAIR_MAX_PASSES", Message: "GEN_REPAIR_MAX_PASSES must be > 0"})
		cfg.GenRepairMax = 10
	}
	if cfg.GenSafetyMargin < 1 {
		problems = append(problems, Problem{Field: "GEN_SAFETY_MARGIN", Message: "GEN_SAFETY_MARGIN must be >= 1"})
		cfg.GenSafetyMargin = 1.2
	}
	if cfg.LockWaitMS <= 0 {
		problems = append(problems, Problem{Field: "REGISTRY_LOCK_WAIT_MS", Message: "REGISTRY_LOCK_WAIT_MS must be > 0"})
		cfg.LockWaitMS = 2000
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}

	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil || p <= 0 || p > 65535 {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		} else {
			cfg.HTTPPort = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT_MS")); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			*problems = append(*problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be an integer"})
		} else {
			cfg.RequestTimeoutMS = ms
		}
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DB_MAX_CONNS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*problems = append(*problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be an integer"})
		} else {
			cfg.DBMaxConns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DB_MIN_CONNS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*problems = append(*problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be an integer"})
		} else {
			cfg.DBMinConns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DB_CONN_MAX_IDLE_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*problems = append(*problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be an integer"})
		} else {
			cfg.DBConnMaxIdleSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*problems = append(*problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be an integer"})
		} else {
			cfg.DBConnMaxLifeSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CONSUMER_GROUP")); v != "" {
		cfg.KafkaGroupID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_RETRY_MAX")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be an integer"})
		} else {
			cfg.KafkaRetryMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_WRITE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be an integer"})
		} else {
			cfg.KafkaWriteMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be an integer"})
		} else {
			cfg.RedisDB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_ADDR")); v != "" {
		cfg.AsynqRedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_PASSWORD")); v != "" {
		cfg.AsynqRedisPass = v
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be an integer"})
		} else {
			cfg.AsynqRedisDB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_QUEUE")); v != "" {
		cfg.AsynqQueue = v
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be an integer"})
		} else {
			cfg.AsynqConcurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_ENABLED")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.AsynqEnabled = b
		} else {
			*problems = append(*problems, Problem{Field: "ASYNQ_ENABLED", Message: "ASYNQ_ENABLED must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_URL")); v != "" {
		cfg.InfluxURL = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_TOKEN")); v != "" {
		cfg.InfluxToken = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_ORG")); v != "" {
		cfg.InfluxOrg = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_BUCKET")); v != "" {
		cfg.InfluxBucket = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be an integer"})
		} else {
			cfg.InfluxTimeoutMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIM_TICK_MS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "SIM_TICK_MS", Message: "SIM_TICK_MS must be an integer"})
		} else {
			cfg.SimTickMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIM_SNAPSHOT_EVERY_TICKS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "SIM_SNAPSHOT_EVERY_TICKS", Message: "SIM_SNAPSHOT_EVERY_TICKS must be an integer"})
		} else {
			cfg.SimSnapshotEvery = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIM_DWELL_TICKS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "SIM_DWELL_TICKS", Message: "SIM_DWELL_TICKS must be an integer"})
		} else {
			cfg.SimDwellTicks = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIM_SUBSCRIBER_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "SIM_SUBSCRIBER_QUEUE_SIZE", Message: "SIM_SUBSCRIBER_QUEUE_SIZE must be an integer"})
		} else {
			cfg.SimQueueSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIM_TRAFFIC_FACTOR_MIN")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "SIM_TRAFFIC_FACTOR_MIN", Message: "SIM_TRAFFIC_FACTOR_MIN must be a number"})
		} else {
			cfg.TrafficFactorMin = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIM_TRAFFIC_FACTOR_MAX")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "SIM_TRAFFIC_FACTOR_MAX", Message: "SIM_TRAFFIC_FACTOR_MAX must be a number"})
		} else {
			cfg.TrafficFactorMax = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("GEN_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err != nil {
			*problems = append(*problems, Problem{Field: "GEN_SEED", Message: "GEN_SEED must be an integer"})
		} else {
			cfg.GenSeed = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GEN_HUB_COUNT")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "GEN_HUB_COUNT", Message: "GEN_HUB_COUNT must be an integer"})
		} else {
			cfg.GenHubCount = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GEN_FANOUT_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "GEN_FANOUT_LIMIT", Message: "GEN_FANOUT_LIMIT must be an integer"})
		} else {
			cfg.GenFanoutLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GEN_REPAIR_MAX_PASSES")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "GEN_REPAIR_MAX_PASSES", Message: "GEN_REPAIR_MAX_PASSES must be an integer"})
		} else {
			cfg.GenRepairMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GEN_SAFETY_MARGIN")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "GEN_SAFETY_MARGIN", Message: "GEN_SAFETY_MARGIN must be a number"})
		} else {
			cfg.GenSafetyMargin = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("REGISTRY_LOCK_WAIT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: "REGISTRY_LOCK_WAIT_MS", Message: "REGISTRY_LOCK_WAIT_MS must be an integer"})
		} else {
			cfg.LockWaitMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.OtelEnabled = b
		} else {
			*problems = append(*problems, Problem{Field: "OTEL_ENABLED", Message: "OTEL_ENABLED must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OtelEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.OtelInsecure = b
		} else {
			*problems = append(*problems, Problem{Field: "OTEL_EXPORTER_OTLP_INSECURE", Message: "OTEL_EXPORTER_OTLP_INSECURE must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLE_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be a number"})
		} else {
			cfg.OtelSampleRatio = f
		}
	}
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		switch strings.ToUpper(strings.TrimSpace(k)) {
		case "ENV":
			if s, ok := v.(string); ok {
				cfg.Env = strings.TrimSpace(s)
			}
		case "SERVICE_NAME":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.ServiceName = strings.TrimSpace(s)
			}
		case "HTTP_PORT":
			p, ok := asInt(v)
			if !ok || p <= 0 || p > 65535 {
				*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
			} else {
				cfg.HTTPPort = p
			}
		case "LOG_LEVEL":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.LogLevel = strings.TrimSpace(s)
			}
		case "REQUEST_TIMEOUT_MS":
			ms, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be an integer"})
			} else {
				cfg.RequestTimeoutMS = ms
			}
		case "DATABASE_URL":
			if s, ok := v.(string); ok {
				cfg.DatabaseURL = strings.TrimSpace(s)
			}
		case "DB_MAX_CONNS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be an integer"})
			} else {
				cfg.DBMaxConns = n
			}
		case "DB_MIN_CONNS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be an integer"})
			} else {
				cfg.DBMinConns = n
			}
		case "DB_CONN_MAX_IDLE_SECONDS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be an integer"})
			} else {
				cfg.DBConnMaxIdleSec = n
			}
		case "DB_CONN_MAX_LIFETIME_SECONDS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be an integer"})
			} else {
				cfg.DBConnMaxLifeSec = n
			}
		case "KAFKA_BROKERS":
			if s, ok := v.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(arr)
			}
		case "KAFKA_CLIENT_ID":
			if s, ok := v.(string); ok {
				cfg.KafkaClientID = strings.TrimSpace(s)
			}
		case "KAFKA_CONSUMER_GROUP":
			if s, ok := v.(string); ok {
				cfg.KafkaGroupID = strings.TrimSpace(s)
			}
		case "KAFKA_RETRY_MAX":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be an integer"})
			} else {
				cfg.KafkaRetryMax = n
			}
		case "KAFKA_WRITE_TIMEOUT_MS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be an integer"})
			} else {
				cfg.KafkaWriteMS = n
			}
		case "REDIS_ADDR":
			if s, ok := v.(string); ok {
				cfg.RedisAddr = strings.TrimSpace(s)
			}
		case "REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.RedisPassword = s
			}
		case "REDIS_DB":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be an integer"})
			} else {
				cfg.RedisDB = n
			}
		case "ASYNQ_REDIS_ADDR":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisAddr = strings.TrimSpace(s)
			}
		case "ASYNQ_REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisPass = s
			}
		case "ASYNQ_REDIS_DB":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be an integer"})
			} else {
				cfg.AsynqRedisDB = n
			}
		case "ASYNQ_QUEUE":
			if s, ok := v.(string); ok {
				cfg.AsynqQueue = strings.TrimSpace(s)
			}
		case "ASYNQ_CONCURRENCY":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be an integer"})
			} else {
				cfg.AsynqConcurrency = n
			}
		case "ASYNQ_ENABLED":
			if s, ok := v.(string); ok {
				if b, ok := asBool(s); ok {
					cfg.AsynqEnabled = b
				} else {
					*problems = append(*problems, Problem{Field: "ASYNQ_ENABLED", Message: "ASYNQ_ENABLED must be a boolean"})
				}
			} else if b, ok := v.(bool); ok {
				cfg.AsynqEnabled = b
			} else {
				*problems = append(*problems, Problem{Field: "ASYNQ_ENABLED", Message: "ASYNQ_ENABLED must be a boolean"})
			}
		case "INFLUX_URL":
			if s, ok := v.(string); ok {
				cfg.InfluxURL = strings.TrimSpace(s)
			}
		case "INFLUX_TOKEN":
			if s, ok := v.(string); ok {
				cfg.InfluxToken = s
			}
		case "INFLUX_ORG":
			if s, ok := v.(string); ok {
				cfg.InfluxOrg = strings.TrimSpace(s)
			}
		case "INFLUX_BUCKET":
			if s, ok := v.(string); ok {
				cfg.InfluxBucket = strings.TrimSpace(s)
			}
		case "INFLUX_TIMEOUT_MS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be an integer"})
			} else {
				cfg.InfluxTimeoutMS = n
			}
		case "SIM_TICK_MS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "SIM_TICK_MS", Message: "SIM_TICK_MS must be an integer"})
			} else {
				cfg.SimTickMS = n
			}
		case "SIM_SNAPSHOT_EVERY_TICKS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "SIM_SNAPSHOT_EVERY_TICKS", Message: "SIM_SNAPSHOT_EVERY_TICKS must be an integer"})
			} else {
				cfg.SimSnapshotEvery = n
			}
		case "SIM_DWELL_TICKS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "SIM_DWELL_TICKS", Message: "SIM_DWELL_TICKS must be an integer"})
			} else {
				cfg.SimDwellTicks = n
			}
		case "SIM_SUBSCRIBER_QUEUE_SIZE":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "SIM_SUBSCRIBER_QUEUE_SIZE", Message: "SIM_SUBSCRIBER_QUEUE_SIZE must be an integer"})
			} else {
				cfg.SimQueueSize = n
			}
		case "SIM_TRAFFIC_FACTOR_MIN":
			if f, ok := asFloat(v); ok {
				cfg.TrafficFactorMin = f
			} else {
				*problems = append(*problems, Problem{Field: "SIM_TRAFFIC_FACTOR_MIN", Message: "SIM_TRAFFIC_FACTOR_MIN must be a number"})
			}
		case "SIM_TRAFFIC_FACTOR_MAX":
			if f, ok := asFloat(v); ok {
				cfg.TrafficFactorMax = f
			} else {
				*problems = append(*problems, Problem{Field: "SIM_TRAFFIC_FACTOR_MAX", Message: "SIM_TRAFFIC_FACTOR_MAX must be a number"})
			}
		case "GEN_SEED":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "GEN_SEED", Message: "GEN_SEED must be an integer"})
			} else {
				cfg.GenSeed = int64(n)
			}
		case "GEN_HUB_COUNT":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "GEN_HUB_COUNT", Message: "GEN_HUB_COUNT must be an integer"})
			} else {
				cfg.GenHubCount = n
			}
		case "GEN_FANOUT_LIMIT":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "GEN_FANOUT_LIMIT", Message: "GEN_FANOUT_LIMIT must be an integer"})
			} else {
				cfg.GenFanoutLimit = n
			}
		case "GEN_REPAIR_MAX_PASSES":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "GEN_REPAIR_MAX_PASSES", Message: "GEN_REPAIR_MAX_PASSES must be an integer"})
			} else {
				cfg.GenRepairMax = n
			}
		case "GEN_SAFETY_MARGIN":
			if f, ok := asFloat(v); ok {
				cfg.GenSafetyMargin = f
			} else {
				*problems = append(*problems, Problem{Field: "GEN_SAFETY_MARGIN", Message: "GEN_SAFETY_MARGIN must be a number"})
			}
		case "REGISTRY_LOCK_WAIT_MS":
			n, ok := asInt(v)
			if !ok {
				*problems = append(*problems, Problem{Field: "REGISTRY_LOCK_WAIT_MS", Message: "REGISTRY_LOCK_WAIT_MS must be an integer"})
			} else {
				cfg.LockWaitMS = n
			}
		case "OTEL_ENABLED":
			if s, ok := v.(string); ok {
				if b, ok := asBool(s); ok {
					cfg.OtelEnabled = b
				} else {
					*problems = append(*problems, Problem{Field: "OTEL_ENABLED", Message: "OTEL_ENABLED must be a boolean"})
				}
			} else if b, ok := v.(bool); ok {
				cfg.OtelEnabled = b
			} else {
				*problems = append(*problems, Problem{Field: "OTEL_ENABLED", Message: "OTEL_ENABLED must be a boolean"})
			}
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			if s, ok := v.(string); ok {
				cfg.OtelEndpoint = strings.TrimSpace(s)
			}
		case "OTEL_EXPORTER_OTLP_INSECURE":
			if s, ok := v.(string); ok {
				if b, ok := asBool(s); ok {
					cfg.OtelInsecure = b
				} else {
					*problems = append(*problems, Problem{Field: "OTEL_EXPORTER_OTLP_INSECURE", Message: "OTEL_EXPORTER_OTLP_INSECURE must be a boolean"})
				}
			} else if b, ok := v.(bool); ok {
				cfg.OtelInsecure = b
			} else {
				*problems = append(*problems, Problem{Field: "OTEL_EXPORTER_OTLP_INSECURE", Message: "OTEL_EXPORTER_OTLP_INSECURE must be a boolean"})
			}
		case "OTEL_SAMPLE_RATIO":
			if f, ok := asFloat(v); ok {
				cfg.OtelSampleRatio = f
			} else {
				*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be a number"})
			}
		}
	}
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
