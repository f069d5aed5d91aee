package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string

	WorkbenchNumber int

	StorageEnable  bool
	StorageBaseURL string

	LedgerEnable  bool
	LedgerBaseURL string

	PrinterEnable    bool
	PrinterBaseURL   string
	PrintBarcode     bool
	PrintQR          bool
	PrintSecurityTag bool

	CameraEnable  bool
	CameraBaseURL string

	SessionStaleAfterSeconds int

	AnchorMaxAttempts     int
	AnchorRetryBaseMillis int
	AnchorSweepSeconds    int
	AnchorQueueSize       int

	PolicyBundlePath string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":5000"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		WorkbenchNumber:          envIntDefault("WORKBENCH_NUMBER", 1),
		StorageEnable:            envBoolDefault("STORAGE_ENABLE", false),
		StorageBaseURL:           envDefault("STORAGE_BASE_URL", "http://127.0.0.1:8083"),
		LedgerEnable:             envBoolDefault("LEDGER_ENABLE", false),
		LedgerBaseURL:            os.Getenv("LEDGER_BASE_URL"),
		PrinterEnable:            envBoolDefault("PRINTER_ENABLE", false),
		PrinterBaseURL:           os.Getenv("PRINTER_BASE_URL"),
		PrintBarcode:             envBoolDefault("PRINTER_PRINT_BARCODE", true),
		PrintQR:                  envBoolDefault("PRINTER_PRINT_QR", true),
		PrintSecurityTag:         envBoolDefault("PRINTER_PRINT_SECURITY_TAG", false),
		CameraEnable:             envBoolDefault("CAMERA_ENABLE", false),
		CameraBaseURL:            os.Getenv("CAMERA_BASE_URL"),
		SessionStaleAfterSeconds: envIntDefault("SESSION_STALE_AFTER_SECONDS", 1800),
		AnchorMaxAttempts:        envIntDefault("ANCHOR_MAX_ATTEMPTS", 3),
		AnchorRetryBaseMillis:    envIntDefault("ANCHOR_RETRY_BASE_MILLIS", 500),
		AnchorSweepSeconds:       envIntDefault("ANCHOR_SWEEP_SECONDS", 60),
		AnchorQueueSize:          envIntDefault("ANCHOR_QUEUE_SIZE", 64),
		PolicyBundlePath:         os.Getenv("POLICY_BUNDLE_PATH"),
		RateLimitRequests:        envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:   envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxKeys:         envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) SessionStaleAfter() time.Duration {
	return time.Duration(c.SessionStaleAfterSeconds) * time.Second
}

func (c Config) AnchorRetryBase() time.Duration {
	return time.Duration(c.AnchorRetryBaseMillis) * time.Millisecond
}

func (c Config) AnchorSweepInterval() time.Duration {
	return time.Duration(c.AnchorSweepSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
