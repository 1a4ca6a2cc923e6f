package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	Mode string `long:"mode" env:"MODE" default:"schedule" choice:"schedule" choice:"api" choice:"once" description:"Run continuously on cadence, serve the query API, or run a single ingest cycle"`

	// Storage and sources
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/news.db" description:"Path to the SQLite database file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`

	// HTTP API
	Host    string `long:"host" env:"HOST" default:"0.0.0.0" description:"HTTP server host"`
	Port    string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`

	// Pipeline
	WorkerCount         int           `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Maximum number of sources ingested concurrently"`
	TickInterval        time.Duration `long:"tick-interval" env:"TICK_INTERVAL" default:"30s" description:"Interval between scheduler ticks"`
	StoreTimeout        time.Duration `long:"store-timeout" env:"STORE_TIMEOUT" default:"5s" description:"Timeout for a single store operation"`
	FetchTimeout        time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Per-attempt fetch timeout for sources without their own"`
	FetchAttempts       int           `long:"fetch-attempts" env:"FETCH_ATTEMPTS" default:"3" description:"Fetch attempts per dispatch"`
	HostInterval        time.Duration `long:"host-interval" env:"HOST_INTERVAL" default:"1s" description:"Minimum spacing between requests to the same host"`
	MaxBodySize         int64         `long:"max-body-size" env:"MAX_BODY_SIZE" default:"5242880" description:"Maximum response body size in bytes"`
	QuarantineThreshold int           `long:"quarantine-threshold" env:"QUARANTINE_THRESHOLD" default:"5" description:"Consecutive failures before a source is quarantined"`
	BackoffFactor       float64       `long:"backoff-factor" env:"BACKOFF_FACTOR" default:"2" description:"Cadence multiplier for quarantined sources"`
	MaxCadence          time.Duration `long:"max-cadence" env:"MAX_CADENCE" default:"24h" description:"Upper bound for a quarantined source's cadence"`
	WindowSize          int           `long:"window-size" env:"WINDOW_SIZE" default:"256" description:"Number of recent ingest outcomes kept in memory"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"News Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log verbosity"`
	Env       string `long:"env" env:"APP_ENV" default:"development" description:"Environment name"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the process arguments. It returns nil, nil when help was shown.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Mode:                Mode(raw.Mode),
		DBPath:              raw.DBPath,
		SourcesDir:          raw.SourcesDir,
		Host:                raw.Host,
		Port:                raw.Port,
		BaseUrl:             raw.BaseUrl,
		WorkerCount:         raw.WorkerCount,
		TickInterval:        raw.TickInterval,
		StoreTimeout:        raw.StoreTimeout,
		FetchTimeout:        raw.FetchTimeout,
		FetchAttempts:       raw.FetchAttempts,
		HostInterval:        raw.HostInterval,
		MaxBodySize:         raw.MaxBodySize,
		QuarantineThreshold: raw.QuarantineThreshold,
		BackoffFactor:       raw.BackoffFactor,
		MaxCadence:          raw.MaxCadence,
		WindowSize:          raw.WindowSize,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		LogLevel:            raw.LogLevel,
		Env:                 raw.Env,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	switch {
	case cfg.WorkerCount < 1:
		return fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	case cfg.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
	case cfg.StoreTimeout <= 0:
		return fmt.Errorf("store timeout must be positive, got %s", cfg.StoreTimeout)
	case cfg.FetchTimeout <= 0:
		return fmt.Errorf("fetch timeout must be positive, got %s", cfg.FetchTimeout)
	case cfg.FetchAttempts < 1:
		return fmt.Errorf("fetch attempts must be at least 1, got %d", cfg.FetchAttempts)
	case cfg.HostInterval < 0:
		return fmt.Errorf("host interval must not be negative, got %s", cfg.HostInterval)
	case cfg.MaxBodySize <= 0:
		return fmt.Errorf("max body size must be positive, got %d", cfg.MaxBodySize)
	case cfg.QuarantineThreshold < 1:
		return fmt.Errorf("quarantine threshold must be at least 1, got %d", cfg.QuarantineThreshold)
	case cfg.BackoffFactor < 1:
		return fmt.Errorf("backoff factor must be at least 1, got %g", cfg.BackoffFactor)
	case cfg.MaxCadence <= 0:
		return fmt.Errorf("max cadence must be positive, got %s", cfg.MaxCadence)
	case cfg.WindowSize < 1:
		return fmt.Errorf("window size must be at least 1, got %d", cfg.WindowSize)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}
