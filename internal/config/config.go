// Package config reads server and client settings from a .env file and the
// process environment. Values already set in the environment win over .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	DatabaseURL    string
	RedisURL       string
	RedisChannel   string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	SubmitTimeout  time.Duration
	SnapshotLimit  int
	InboxCapacity  int
	StatsInterval  time.Duration
	APIURL         string
}

func Defaults() Config {
	return Config{
		Port:           8080,
		RedisChannel:   "stageboard:attempts",
		LogLevel:       "info",
		LogFormat:      "console",
		AllowedOrigins: []string{"*"},
		SubmitTimeout:  10 * time.Second,
		SnapshotLimit:  100,
		InboxCapacity:  100,
		StatsInterval:  time.Minute,
		APIURL:         "http://localhost:8080",
	}
}

// Load reads envFile (a missing file is fine) and then the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Defaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	var errs []error

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	atoi := func(key string, dst *int, min int) {
		v, ok := get(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < min {
			errs = append(errs, fmt.Errorf("%s: want an integer >= %d, got %q", key, min, v))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := get(key)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: want a positive duration, got %q", key, v))
			return
		}
		*dst = d
	}

	atoi("PORT", &cfg.Port, 1)
	if v, ok := get("DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := get("REDIS_URL"); ok {
		cfg.RedisURL = v
	}
	if v, ok := get("REDIS_CHANNEL"); ok {
		cfg.RedisChannel = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(v)
	}
	duration("SUBMIT_TIMEOUT", &cfg.SubmitTimeout)
	atoi("SNAPSHOT_LIMIT", &cfg.SnapshotLimit, 0)
	atoi("INBOX_CAPACITY", &cfg.InboxCapacity, 1)
	duration("STATS_INTERVAL", &cfg.StatsInterval)
	if v, ok := get("STAGEBOARD_API_URL"); ok {
		cfg.APIURL = strings.TrimRight(v, "/")
	}

	if cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %d out of range", cfg.Port))
	}
	return cfg, errors.Join(errs...)
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
