package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StoreDSN        string
	MongoURI        string
	RedisAddr       string
	RabbitURL       string
	OTLPEndpoint    string
	ListenAddr      string
	DefaultHoldTTL  time.Duration
	DefaultQuotaPct float64
	SweepInterval   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 5 * time.Minute
	}

	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = 5 * time.Minute
	}

	quotaPct, _ := strconv.ParseFloat(os.Getenv("HOLD_QUOTA_PCT"), 64)
	if quotaPct == 0 {
		quotaPct = 25
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		StoreDSN:        os.Getenv("STORE_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ListenAddr:      listenAddr,
		DefaultHoldTTL:  holdTTL,
		DefaultQuotaPct: quotaPct,
		SweepInterval:   sweepInterval,
	}, nil
}
