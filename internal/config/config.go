package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. AUTOGRADE_ADDR.
const EnvPrefix = "AUTOGRADE_"

// ServerConfig holds configuration for the autograde server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (default ~/.autograde/autograde.db, ":memory:" for testing)

	// Scheduler
	MaxConcurrent  int           `yaml:"max_concurrent"`  // Concurrent grading backend calls, <= 0 is unlimited
	BackendTimeout time.Duration `yaml:"backend_timeout"` // Deadline for one backend call
	MaxQueueWait   time.Duration `yaml:"max_queue_wait"`  // Queued work older than this fails without grading, 0 disables

	// Grading
	MergeWindow       time.Duration `yaml:"merge_window"`
	AnonymousKeep     int           `yaml:"anonymous_keep"`
	PollStart         time.Duration `yaml:"poll_start"`
	PollStep          time.Duration `yaml:"poll_step"`
	PollSteps         int           `yaml:"poll_steps"`
	RecoveryAge       time.Duration `yaml:"recovery_age"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	ObserverRetention time.Duration `yaml:"observer_retention"`
	ReconcileBudget   time.Duration `yaml:"reconcile_budget"`

	// Downstream collaborators
	SendGridKey   string        `yaml:"sendgrid_key"`
	MailFrom      string        `yaml:"mail_from"`
	OperatorEmail string        `yaml:"operator_email"`
	GradeSyncURL  string        `yaml:"grade_sync_url"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
	RedisAddr     string        `yaml:"redis_addr"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	// Executors registered at startup when not yet known to the store.
	Executors []ExecutorConfig `yaml:"executors"`
}

// ExecutorConfig describes a grading executor to register at startup.
type ExecutorConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	MaxLoad int    `yaml:"max_load"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",

		MaxConcurrent:  4,
		BackendTimeout: 2 * time.Minute,

		MergeWindow:       10 * time.Second,
		AnonymousKeep:     50,
		PollStart:         500 * time.Millisecond,
		PollStep:          250 * time.Millisecond,
		PollSteps:         10,
		RecoveryAge:       30 * time.Minute,
		SweepInterval:     time.Minute,
		ObserverRetention: 10 * time.Minute,
		ReconcileBudget:   time.Minute,

		MailFrom:      "autograde@localhost",
		NotifyTimeout: 10 * time.Second,
		CacheTTL:      time.Minute,
	}
}

// Validate rejects configurations the server cannot run with.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, errors.New("backend_timeout must be positive"))
	}
	if c.MergeWindow < 0 {
		errs = append(errs, errors.New("merge_window must not be negative"))
	}
	if c.AnonymousKeep < 1 {
		errs = append(errs, errors.New("anonymous_keep must be at least 1"))
	}
	if c.PollStart <= 0 || c.PollStep < 0 || c.PollSteps < 1 {
		errs = append(errs, errors.New("poll_start, poll_step and poll_steps must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	for i, e := range c.Executors {
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("executors[%d]: base_url is required", i))
		}
	}
	return errors.Join(errs...)
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays AUTOGRADE_* environment variables onto cfg.
func ApplyEnv(cfg *ServerConfig, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := cast.ToDurationE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &cfg.Addr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("DB_PATH", &cfg.DBPath)
	num("MAX_CONCURRENT", &cfg.MaxConcurrent)
	dur("BACKEND_TIMEOUT", &cfg.BackendTimeout)
	dur("MAX_QUEUE_WAIT", &cfg.MaxQueueWait)
	dur("MERGE_WINDOW", &cfg.MergeWindow)
	num("ANONYMOUS_KEEP", &cfg.AnonymousKeep)
	dur("POLL_START", &cfg.PollStart)
	dur("POLL_STEP", &cfg.PollStep)
	num("POLL_STEPS", &cfg.PollSteps)
	dur("RECOVERY_AGE", &cfg.RecoveryAge)
	dur("SWEEP_INTERVAL", &cfg.SweepInterval)
	dur("OBSERVER_RETENTION", &cfg.ObserverRetention)
	dur("RECONCILE_BUDGET", &cfg.ReconcileBudget)
	str("SENDGRID_KEY", &cfg.SendGridKey)
	str("MAIL_FROM", &cfg.MailFrom)
	str("OPERATOR_EMAIL", &cfg.OperatorEmail)
	str("GRADE_SYNC_URL", &cfg.GradeSyncURL)
	dur("NOTIFY_TIMEOUT", &cfg.NotifyTimeout)
	str("REDIS_ADDR", &cfg.RedisAddr)
	dur("CACHE_TTL", &cfg.CacheTTL)

	return errors.Join(errs...)
}

// BindFlags registers command-line flags writing into cfg. Flag defaults are
// taken from cfg, so binding after file and env overlays keeps those values
// unless a flag is given explicitly.
func BindFlags(fs *flag.FlagSet, cfg *ServerConfig) {
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.autograde/autograde.db)")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "Concurrent grading backend calls (<= 0 for unlimited)")
	fs.DurationVar(&cfg.BackendTimeout, "backend-timeout", cfg.BackendTimeout, "Deadline for one grading backend call")
	fs.DurationVar(&cfg.MaxQueueWait, "max-queue-wait", cfg.MaxQueueWait, "Fail queued grading work older than this (0 disables)")
	fs.DurationVar(&cfg.MergeWindow, "merge-window", cfg.MergeWindow, "Teacher activity merge window")
	fs.IntVar(&cfg.AnonymousKeep, "anonymous-keep", cfg.AnonymousKeep, "Anonymous submissions kept per exercise")
	fs.DurationVar(&cfg.RecoveryAge, "recovery-age", cfg.RecoveryAge, "Fail IN_PROGRESS submissions without a live grading attempt after this age")
	fs.StringVar(&cfg.GradeSyncURL, "grade-sync-url", cfg.GradeSyncURL, "Webhook notified after grade changes")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the read cache (empty for in-memory)")
}

// Parse builds the server configuration from defaults, an optional YAML
// file, an optional dotenv file, AUTOGRADE_* variables and finally flags.
func Parse(name string, args []string) (ServerConfig, error) {
	var configFile, envFile string

	// First pass only locates the config and env files.
	pre := flag.NewFlagSet(name, flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	scratch := DefaultServerConfig()
	BindFlags(pre, &scratch)
	pre.StringVar(&configFile, "config", "", "")
	pre.StringVar(&envFile, "env-file", "", "")
	pre.Bool("debug", false, "")
	_ = pre.Parse(args)

	cfg := DefaultServerConfig()
	if envFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			envFile = ".env"
		}
	}
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return cfg, err
		}
	}
	if configFile != "" {
		if err := LoadFile(configFile, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	BindFlags(fs, &cfg)
	fs.StringVar(&configFile, "config", configFile, "Path to YAML config file")
	fs.StringVar(&envFile, "env-file", envFile, "Path to dotenv file (default .env when present)")
	debug := fs.Bool("debug", false, "Shorthand for --log-level=debug")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}
