// Package config loads service configuration from the environment.
// A .env file in the working directory is read first when present;
// variables already set in the environment win over it.
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

	"pnf-signal-lab/internal/backtest"
	"pnf-signal-lab/internal/indicator"
	"pnf-signal-lab/internal/pattern"
	"pnf-signal-lab/internal/pnf"
	"pnf-signal-lab/internal/tracker"
)

// Config holds application configuration.
type Config struct {
	// Storage
	PostgresDSN   string
	ClickHouseDSN string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Alert delivery
	KafkaBrokers []string
	KafkaTopic   string

	// Live feed and HTTP
	FeedURL     string
	MetricsAddr string
	LogLevel    string

	Chart    ChartConfig
	Backtest BacktestConfig

	errs []error
}

// ChartConfig holds chart and classifier parameters.
type ChartConfig struct {
	BoxSizePct     float64 // fraction, 0.01 = 1%
	ReversalBoxes  int
	Policy         string
	AnchorMinBoxes int
	TolerancePct   float64 // fraction, 0.005 = 0.5%
	Lookback       int
	EMAPeriod      int
	EMAValidated   bool
	BestOnly       bool
}

// BacktestConfig holds replay parameters.
type BacktestConfig struct {
	Step          time.Duration
	Workers       int
	WarmupCandles int
	MinTriggerGap time.Duration
	MaxStaleness  time.Duration
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv reads the environment only. Malformed values fall back to their
// defaults and are reported by Validate.
func FromEnv() *Config {
	c := &Config{}
	chart := pnf.DefaultConfig()
	opts := pattern.DefaultOptions()
	engine := backtest.DefaultEngineConfig()
	trk := tracker.DefaultConfig()

	c.PostgresDSN = getEnv("POSTGRES_DSN", "")
	c.ClickHouseDSN = getEnv("CLICKHOUSE_DSN", "")
	c.RedisAddr = getEnv("REDIS_ADDR", "")
	c.RedisPassword = getEnv("REDIS_PASSWORD", "")
	c.RedisDB = c.getEnvInt("REDIS_DB", 0)

	c.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))
	c.KafkaTopic = getEnv("KAFKA_TOPIC", "pnf-alerts")

	c.FeedURL = getEnv("FEED_URL", "")
	c.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	c.LogLevel = getEnv("LOG_LEVEL", "INFO")

	c.Chart = ChartConfig{
		BoxSizePct:     c.getEnvFloat("PNF_BOX_SIZE_PCT", chart.BoxSizePct),
		ReversalBoxes:  c.getEnvInt("PNF_REVERSAL_BOXES", chart.ReversalBoxes),
		Policy:         getEnv("PNF_POLICY", string(chart.Policy)),
		AnchorMinBoxes: c.getEnvInt("PNF_ANCHOR_MIN_BOXES", trk.AnchorMinBoxes),
		TolerancePct:   c.getEnvFloat("PNF_TOLERANCE_PCT", opts.Tolerance),
		Lookback:       c.getEnvInt("PNF_LOOKBACK", opts.Lookback),
		EMAPeriod:      c.getEnvInt("PNF_EMA_PERIOD", trk.EMAPeriod),
		EMAValidated:   c.getEnvBool("PNF_EMA_VALIDATED", false),
		BestOnly:       c.getEnvBool("PNF_BEST_ONLY", false),
	}

	c.Backtest = BacktestConfig{
		Step:          c.getEnvDuration("BACKTEST_STEP", time.Minute),
		Workers:       c.getEnvInt("BACKTEST_WORKERS", 4),
		WarmupCandles: c.getEnvInt("BACKTEST_WARMUP_CANDLES", 0),
		MinTriggerGap: c.getEnvDuration("BACKTEST_MIN_TRIGGER_GAP", 0),
		MaxStaleness:  c.getEnvDuration("BACKTEST_MAX_STALENESS", engine.MaxStaleness),
	}
	return c
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if len(c.errs) > 0 {
		return fmt.Errorf("%w: %w", pnf.ErrConfiguration, errors.Join(c.errs...))
	}
	if _, err := c.TrackerConfig(); err != nil {
		return err
	}
	if c.Chart.AnchorMinBoxes < 1 {
		return fmt.Errorf("%w: PNF_ANCHOR_MIN_BOXES must be >= 1, got %d", pnf.ErrConfiguration, c.Chart.AnchorMinBoxes)
	}
	if !(c.Chart.TolerancePct > 0) || c.Chart.TolerancePct >= 1 {
		return fmt.Errorf("%w: PNF_TOLERANCE_PCT must be in (0, 1), got %v", pnf.ErrConfiguration, c.Chart.TolerancePct)
	}
	if c.Chart.Lookback < 1 || c.Chart.EMAPeriod < 1 {
		return fmt.Errorf("%w: PNF_LOOKBACK and PNF_EMA_PERIOD must be >= 1", pnf.ErrConfiguration)
	}
	if c.Backtest.Step <= 0 {
		return fmt.Errorf("%w: BACKTEST_STEP must be positive, got %s", pnf.ErrConfiguration, c.Backtest.Step)
	}
	if c.Backtest.Workers < 1 {
		return fmt.Errorf("%w: BACKTEST_WORKERS must be >= 1, got %d", pnf.ErrConfiguration, c.Backtest.Workers)
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%w: REDIS_DB must be >= 0, got %d", pnf.ErrConfiguration, c.RedisDB)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: KAFKA_TOPIC is required with KAFKA_BROKERS", pnf.ErrConfiguration)
	}
	return nil
}

// TrackerConfig builds the chart pipeline settings.
func (c *Config) TrackerConfig() (tracker.Config, error) {
	policy, err := pnf.ParsePolicy(c.Chart.Policy)
	if err != nil {
		return tracker.Config{}, err
	}
	cfg := tracker.DefaultConfig()
	cfg.Chart = pnf.Config{
		BoxSizePct:    c.Chart.BoxSizePct,
		ReversalBoxes: c.Chart.ReversalBoxes,
		Policy:        policy,
	}
	if err := cfg.Chart.Validate(); err != nil {
		return tracker.Config{}, err
	}
	cfg.AnchorMinBoxes = c.Chart.AnchorMinBoxes
	cfg.EMAPeriod = c.Chart.EMAPeriod
	cfg.Pattern.Tolerance = c.Chart.TolerancePct
	cfg.Pattern.Lookback = c.Chart.Lookback
	cfg.Pattern.EMAValidated = c.Chart.EMAValidated
	cfg.Pattern.BestOnly = c.Chart.BestOnly
	return cfg, nil
}

// EngineConfig builds the backtest engine settings on top of the defaults.
func (c *Config) EngineConfig() backtest.EngineConfig {
	cfg := backtest.DefaultEngineConfig()
	cfg.WarmupCandles = c.Backtest.WarmupCandles
	cfg.MinTriggerGap = c.Backtest.MinTriggerGap
	cfg.MaxStaleness = c.Backtest.MaxStaleness
	return cfg
}

// RunnerConfig builds the multi-instrument runner settings.
func (c *Config) RunnerConfig() backtest.RunnerConfig {
	return backtest.RunnerConfig{
		Engine:  c.EngineConfig(),
		Step:    c.Backtest.Step,
		Workers: c.Backtest.Workers,
	}
}

// TriggerFactory selects the trigger under test by name:
// backtest.PatternTriggerName or indicator.VolumeMomentumName.
func (c *Config) TriggerFactory(name string) (backtest.TriggerFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case backtest.PatternTriggerName:
		trk, err := c.TrackerConfig()
		if err != nil {
			return nil, err
		}
		return backtest.PatternTriggerFactory(trk), nil
	case indicator.VolumeMomentumName:
		return indicator.Factory(indicator.DefaultOptions()), nil
	default:
		return nil, fmt.Errorf("%w: unknown trigger %q", pnf.ErrConfiguration, name)
	}
}

// getEnv gets environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int or returns default value
func (c *Config) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getEnvFloat gets environment variable as float64 or returns default value
func (c *Config) getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getEnvDuration gets environment variable as time.Duration ("90s", "5m") or returns default value
func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getEnvBool gets environment variable as bool or returns default value
func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
