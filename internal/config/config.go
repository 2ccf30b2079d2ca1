package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything the console needs at startup.
type Config struct {
	APIURL   string `validate:"required"`
	APIToken string
	Operator string
	LogDir   string `validate:"required"`
	LogLevel string `validate:"oneof=debug info warn error"`

	Queue         Queue
	Cache         Cache
	Notifications Notifications
	Polling       Polling
}

// Queue tunes the request queue.
type Queue struct {
	MaxConcurrent   int `validate:"min=1"`
	ProcessingDelay time.Duration
}

// Cache tunes the response cache. A negative ErrorTTL disables error caching.
type Cache struct {
	DefaultTTL time.Duration
	ErrorTTL   time.Duration
}

// Notifications tunes the desktop notification limiter.
type Notifications struct {
	MaxPerMinute      int `validate:"min=1"`
	TagCooldown       time.Duration
	GroupingWindow    time.Duration
	GroupingThreshold int `validate:"min=2"`
	Retention         time.Duration
}

// Polling tunes the update checker schedule.
type Polling struct {
	Interval         time.Duration `validate:"min=1s"`
	Throttle         time.Duration
	VisibilitySettle time.Duration
	StartupDelay     time.Duration
}

const (
	defaultConfigPath = "~/.config/ssportal/config.toml"
	defaultLogDir     = "~/.local/share/ssportal/logs"
	defaultAPIURL     = "http://127.0.0.1:8080"
	defaultLogLevel   = "info"

	envAPIURL   = "SSPORTAL_API_URL"
	envAPIToken = "SSPORTAL_API_TOKEN"
	envOperator = "SSPORTAL_OPERATOR"
)

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		APIURL:   defaultAPIURL,
		LogDir:   mustExpand(defaultLogDir),
		LogLevel: defaultLogLevel,
		Queue: Queue{
			MaxConcurrent:   3,
			ProcessingDelay: 300 * time.Millisecond,
		},
		Cache: Cache{
			DefaultTTL: 30 * time.Second,
			ErrorTTL:   5 * time.Second,
		},
		Notifications: Notifications{
			MaxPerMinute:      5,
			TagCooldown:       2 * time.Minute,
			GroupingWindow:    5 * time.Minute,
			GroupingThreshold: 3,
			Retention:         time.Hour,
		},
		Polling: Polling{
			Interval:         2 * time.Minute,
			Throttle:         15 * time.Second,
			VisibilitySettle: 3 * time.Second,
			StartupDelay:     5 * time.Second,
		},
	}
}

type rawConfig struct {
	APIURL   string `toml:"api_url"`
	APIToken string `toml:"api_token"`
	Operator string `toml:"operator"`
	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"`

	Queue struct {
		MaxConcurrent     int   `toml:"max_concurrent"`
		ProcessingDelayMS int64 `toml:"processing_delay_ms"`
	} `toml:"queue"`

	Cache struct {
		DefaultTTLMS int64 `toml:"default_ttl_ms"`
		ErrorTTLMS   int64 `toml:"error_ttl_ms"`
	} `toml:"cache"`

	Notifications struct {
		MaxPerMinute      int   `toml:"max_per_minute"`
		TagCooldownMS     int64 `toml:"tag_cooldown_ms"`
		GroupingWindowMS  int64 `toml:"grouping_window_ms"`
		GroupingThreshold int   `toml:"grouping_threshold"`
		RetentionMS       int64 `toml:"retention_ms"`
	} `toml:"notifications"`

	Polling struct {
		IntervalMS         int64 `toml:"interval_ms"`
		ThrottleMS         int64 `toml:"throttle_ms"`
		VisibilitySettleMS int64 `toml:"visibility_settle_ms"`
		StartupDelayMS     int64 `toml:"startup_delay_ms"`
	} `toml:"polling"`
}

// Load locates and parses the config, falling back to defaults when missing.
// A .env file next to the config file and then the process environment
// override the credential keys.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()

	raw, err := readRaw(resolved)
	if err != nil {
		return Config{}, err
	}
	if raw != nil {
		raw.apply(&cfg)
	}

	dotenv, err := readDotenv(filepath.Join(filepath.Dir(resolved), ".env"))
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first settings that cannot run the console.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s is %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// LogPath returns the console's own log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.LogDir) == "" {
		return mustExpand(defaultLogDir + "/ssportal.log")
	}
	return filepath.Join(c.LogDir, "ssportal.log")
}

func readRaw(resolved string) (*rawConfig, error) {
	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &raw, nil
}

func (raw *rawConfig) apply(cfg *Config) {
	setString(&cfg.APIURL, raw.APIURL)
	setString(&cfg.APIToken, raw.APIToken)
	setString(&cfg.Operator, raw.Operator)
	if dir := strings.TrimSpace(raw.LogDir); dir != "" {
		cfg.LogDir = mustExpand(dir)
	}
	if level := strings.TrimSpace(raw.LogLevel); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	setInt(&cfg.Queue.MaxConcurrent, raw.Queue.MaxConcurrent)
	setMillis(&cfg.Queue.ProcessingDelay, raw.Queue.ProcessingDelayMS)

	setMillis(&cfg.Cache.DefaultTTL, raw.Cache.DefaultTTLMS)
	switch {
	case raw.Cache.ErrorTTLMS < 0:
		cfg.Cache.ErrorTTL = -1
	case raw.Cache.ErrorTTLMS > 0:
		cfg.Cache.ErrorTTL = millis(raw.Cache.ErrorTTLMS)
	}

	setInt(&cfg.Notifications.MaxPerMinute, raw.Notifications.MaxPerMinute)
	setMillis(&cfg.Notifications.TagCooldown, raw.Notifications.TagCooldownMS)
	setMillis(&cfg.Notifications.GroupingWindow, raw.Notifications.GroupingWindowMS)
	setInt(&cfg.Notifications.GroupingThreshold, raw.Notifications.GroupingThreshold)
	setMillis(&cfg.Notifications.Retention, raw.Notifications.RetentionMS)

	setMillis(&cfg.Polling.Interval, raw.Polling.IntervalMS)
	setMillis(&cfg.Polling.Throttle, raw.Polling.ThrottleMS)
	setMillis(&cfg.Polling.VisibilitySettle, raw.Polling.VisibilitySettleMS)
	setMillis(&cfg.Polling.StartupDelay, raw.Polling.StartupDelayMS)
}

func readDotenv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return values, nil
}

func applyEnv(cfg *Config, lookup func(string) string) {
	setString(&cfg.APIURL, lookup(envAPIURL))
	setString(&cfg.APIToken, lookup(envAPIToken))
	setString(&cfg.Operator, lookup(envOperator))
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setMillis(dst *time.Duration, ms int64) {
	if ms > 0 {
		*dst = millis(ms)
	}
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
