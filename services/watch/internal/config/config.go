package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/movieon/services/watch/internal/kv"
	"github.com/example/movieon/services/watch/internal/player"
)

type StorageConfig struct {
	Backend     string
	Dir         string
	RedisURL    string
	DatabaseURL string
	QuotaBytes  int
}

type PlayerConfig struct {
	Sampling       string
	SampleInterval time.Duration
	RuntimeTimeout time.Duration
}

type WorkerConfig struct {
	BatchSize     int
	BatchInterval time.Duration
}

type WatchConfig struct {
	Storage       StorageConfig
	Player        PlayerConfig
	Worker        WorkerConfig
	SessionIdle   time.Duration
	MaxEntries    int
	ProfileSecret []byte
	NATSURL       string
	AsyncWrites   bool
	CatalogTTL    time.Duration
	EventsRPS     float64
	EventsBurst   int
}

// KV maps the storage section onto kv.Config.
func (c WatchConfig) KV() kv.Config {
	return kv.Config{
		Backend:     c.Storage.Backend,
		Dir:         c.Storage.Dir,
		RedisURL:    c.Storage.RedisURL,
		DatabaseURL: c.Storage.DatabaseURL,
		QuotaBytes:  c.Storage.QuotaBytes,
	}
}

// Strategy builds the sampling strategy named by WATCH_SAMPLING.
func (c WatchConfig) Strategy() (player.Strategy, error) {
	return player.ParseStrategy(c.Player.Sampling, c.Player.SampleInterval)
}

// LoadWatch reads the watch service settings. A profile secret is mandatory
// in production; elsewhere a fixed development secret is used.
func LoadWatch(isProd bool) (WatchConfig, error) {
	cfg := WatchConfig{
		Storage: StorageConfig{
			Backend:     strings.ToLower(env("WATCH_STORAGE_BACKEND")),
			Dir:         env("WATCH_STORAGE_DIR"),
			RedisURL:    env("REDIS_URL"),
			DatabaseURL: env("DATABASE_URL"),
		},
		Player: PlayerConfig{
			Sampling: strings.ToLower(env("WATCH_SAMPLING")),
		},
		NATSURL:     env("NATS_URL"),
		AsyncWrites: boolEnv("WATCH_ASYNC_WRITES", true),
	}

	var err error
	if cfg.Storage.QuotaBytes, err = intEnv("WATCH_STORAGE_QUOTA_BYTES", 5<<20); err != nil {
		return WatchConfig{}, err
	}
	if cfg.Player.SampleInterval, err = durationEnv("WATCH_SAMPLE_INTERVAL", player.DefaultSampleInterval); err != nil {
		return WatchConfig{}, err
	}
	if cfg.Player.RuntimeTimeout, err = durationEnv("WATCH_RUNTIME_TIMEOUT", player.DefaultRuntimeTimeout); err != nil {
		return WatchConfig{}, err
	}
	if cfg.SessionIdle, err = durationEnv("WATCH_SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return WatchConfig{}, err
	}
	if cfg.MaxEntries, err = intEnv("WATCH_PROGRESS_MAX_ENTRIES", 200); err != nil {
		return WatchConfig{}, err
	}
	if cfg.CatalogTTL, err = durationEnv("WATCH_CATALOG_CACHE_TTL", 5*time.Minute); err != nil {
		return WatchConfig{}, err
	}
	if cfg.Worker.BatchSize, err = intEnv("WORKER_BATCH_SIZE", 100); err != nil {
		return WatchConfig{}, err
	}
	ms, err := intEnv("WORKER_BATCH_INTERVAL_MS", 2000)
	if err != nil {
		return WatchConfig{}, err
	}
	cfg.Worker.BatchInterval = time.Duration(ms) * time.Millisecond
	if cfg.EventsBurst, err = intEnv("WATCH_EVENTS_BURST", 40); err != nil {
		return WatchConfig{}, err
	}
	rps, err := intEnv("WATCH_EVENTS_RPS", 20)
	if err != nil {
		return WatchConfig{}, err
	}
	cfg.EventsRPS = float64(rps)

	if _, err := cfg.Strategy(); err != nil {
		return WatchConfig{}, err
	}

	secret := env("PROFILE_SECRET")
	switch {
	case secret != "":
		cfg.ProfileSecret = []byte(secret)
	case isProd:
		return WatchConfig{}, errors.New("PROFILE_SECRET is required in production")
	default:
		cfg.ProfileSecret = []byte("movieon-dev-profile-secret")
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func boolEnv(key string, def bool) bool {
	switch strings.ToLower(env(key)) {
	case "":
		return def
	case "0", "false", "no":
		return false
	default:
		return true
	}
}

func intEnv(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

// durationEnv accepts Go durations ("10s") or plain seconds ("10").
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}
