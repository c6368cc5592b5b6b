package app

import (
	"strings"
	"time"

	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/utils"
)

type Config struct {
	Environment string
	Port        string
	CORSOrigins []string

	DB    db.Config
	Cache cache.Config

	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	OperationDeadline time.Duration

	ConsistencyMaxAttempts int
	ConsistencyBaseDelay   time.Duration

	OpLogCapacity     int
	PoolProbeInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	origins := utils.GetEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173", log)
	return Config{
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Port:        utils.GetEnv("PORT", "8080", log),
		CORSOrigins: splitCSV(origins),

		DB:    db.LoadConfig(log),
		Cache: cache.LoadConfig(log),

		RetryMaxAttempts:  utils.GetEnvAsInt("RETRY_MAX_ATTEMPTS", 5, log),
		RetryBaseDelay:    utils.GetEnvAsDuration("RETRY_BASE_DELAY", 200*time.Millisecond, log),
		OperationDeadline: utils.GetEnvAsDuration("OPERATION_DEADLINE", 30*time.Second, log),

		ConsistencyMaxAttempts: utils.GetEnvAsInt("CONSISTENCY_MAX_ATTEMPTS", 3, log),
		ConsistencyBaseDelay:   utils.GetEnvAsDuration("CONSISTENCY_BASE_DELAY", 75*time.Millisecond, log),

		OpLogCapacity:     utils.GetEnvAsInt("OPLOG_CAPACITY", 256, log),
		PoolProbeInterval: utils.GetEnvAsDuration("POOL_PROBE_INTERVAL", 30*time.Second, log),
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
