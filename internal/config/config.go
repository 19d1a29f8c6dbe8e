package config

import (
	"os"
	"strconv"
	"time"
)

// Config is process-level configuration, fixed at startup. Runtime
// dispatch parameters (delays, window, enabled) live in the database
// and are polled by the loop instead.
type Config struct {
	DSN           string
	HTTPPort      string
	CountryPrefix string

	SendTimeout    time.Duration
	SendRatePerMin float64

	ClaimSweepEvery time.Duration
	ClaimStaleAfter time.Duration
}

func Load() Config {
	return Config{
		DSN:            GetEnv("DB_DSN", "file:dispatcher.db?_foreign_keys=on"),
		HTTPPort:       GetEnv("PORT", "9724"),
		CountryPrefix:  GetEnv("COUNTRY_PREFIX", "55"),
		SendTimeout:    time.Duration(GetEnvAsInt("SEND_TIMEOUT_SEC", 20)) * time.Second,
		SendRatePerMin: float64(GetEnvAsInt("SEND_RATE_PER_MIN", 30)),

		ClaimSweepEvery: time.Duration(GetEnvAsInt("CLAIM_SWEEP_EVERY_MIN", 5)) * time.Minute,
		ClaimStaleAfter: time.Duration(GetEnvAsInt("CLAIM_STALE_AFTER_MIN", 15)) * time.Minute,
	}
}

func GetEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func GetEnvAsInt(name string, defaultVal int) int {
	valueStr := GetEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}
