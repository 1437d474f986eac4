package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to run the classifier.
type Config struct {
	Input   string        `yaml:"input"`
	Output  string        `yaml:"output"`
	Worker  WorkerConfig  `yaml:"worker"`
	Browser BrowserConfig `yaml:"browser"`
	Acquire AcquireConfig `yaml:"acquire"`
	Detect  DetectConfig  `yaml:"detect"`
	Judge   JudgeConfig   `yaml:"judge"`
	Robots  RobotsConfig  `yaml:"robots"`
	Logging LoggingConfig `yaml:"logging"`
}

// WorkerConfig controls pool concurrency and resume behaviour.
type WorkerConfig struct {
	Count     int  `yaml:"count"`
	Reprocess bool `yaml:"reprocess"`
}

// BrowserConfig controls the Chrome session owned by each worker.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless"`
	UserAgent    string `yaml:"user_agent"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
}

// AcquireConfig holds the progressive page-load schedule. Timeouts and
// SettleWaits are indexed by attempt; their lengths must match.
type AcquireConfig struct {
	Timeouts     []Duration `yaml:"timeouts"`
	SettleWaits  []Duration `yaml:"settle_waits"`
	RetryBackoff Duration   `yaml:"retry_backoff"`
	WarmupScroll int        `yaml:"warmup_scroll_px"`
	WarmupWait   Duration   `yaml:"warmup_wait"`
}

// Attempts returns the number of configured load attempts.
func (a AcquireConfig) Attempts() int { return len(a.Timeouts) }

// DetectConfig holds the behavioral-path thresholds. These are empirically
// chosen constants, kept tunable rather than hard-coded.
type DetectConfig struct {
	FooterGrowth    int64    `yaml:"footer_growth"`
	HeightGrowth    int64    `yaml:"height_growth_px"`
	ElementGrowth   int64    `yaml:"element_growth"`
	ScrollWait      Duration `yaml:"scroll_wait"`
	ScrollRetryWait Duration `yaml:"scroll_retry_wait"`
	ClickWait       Duration `yaml:"click_wait"`
}

// JudgeConfig configures the optional AI judge and its process-wide pacing.
type JudgeConfig struct {
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	MinInterval Duration `yaml:"min_interval"`
	MaxRetries  int      `yaml:"max_retries"`
	SnippetMax  int      `yaml:"snippet_max_chars"`
}

// APIKey resolves the judge credential from the configured environment
// variable. Empty means the judge is disabled.
func (j JudgeConfig) APIKey() string {
	if j.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(j.APIKeyEnv))
}

// RobotsConfig configures robots.txt handling before driving the browser.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with the schedule and thresholds the
// classifier ships with.
func Default() Config {
	return Config{
		Input:  "test.csv",
		Output: "output.csv",
		Worker: WorkerConfig{
			Count: 5,
		},
		Browser: BrowserConfig{
			Headless:     true,
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Acquire: AcquireConfig{
			Timeouts: []Duration{
				DurationFrom(10 * time.Second),
				DurationFrom(15 * time.Second),
				DurationFrom(20 * time.Second),
			},
			SettleWaits: []Duration{
				DurationFrom(3 * time.Second),
				DurationFrom(5 * time.Second),
				DurationFrom(7 * time.Second),
			},
			RetryBackoff: DurationFrom(3 * time.Second),
			WarmupScroll: 500,
			WarmupWait:   DurationFrom(time.Second),
		},
		Detect: DetectConfig{
			FooterGrowth:    5,
			HeightGrowth:    400,
			ElementGrowth:   8,
			ScrollWait:      DurationFrom(2 * time.Second),
			ScrollRetryWait: DurationFrom(5 * time.Second),
			ClickWait:       DurationFrom(4 * time.Second),
		},
		Judge: JudgeConfig{
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			Model:       "claude-3-5-haiku-20241022",
			MinInterval: DurationFrom(12 * time.Second),
			MaxRetries:  3,
			SnippetMax:  3000,
		},
		Robots: RobotsConfig{
			Respect:   false,
			UserAgent: "pagination-classifier/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the classifier configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return errors.New("input must be set")
	}
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("output must be set")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be > 0 (got %d)", c.Worker.Count)
	}
	if len(c.Acquire.Timeouts) == 0 {
		return errors.New("acquire.timeouts must list at least one attempt")
	}
	if len(c.Acquire.Timeouts) != len(c.Acquire.SettleWaits) {
		return fmt.Errorf("acquire.timeouts and acquire.settle_waits must have equal length (got %d and %d)",
			len(c.Acquire.Timeouts), len(c.Acquire.SettleWaits))
	}
	for i, d := range c.Acquire.Timeouts {
		if d.Duration <= 0 {
			return fmt.Errorf("acquire.timeouts[%d] must be > 0", i)
		}
	}
	for i, d := range c.Acquire.SettleWaits {
		if d.Duration < 0 {
			return fmt.Errorf("acquire.settle_waits[%d] must be >= 0", i)
		}
	}
	if c.Detect.FooterGrowth <= 0 || c.Detect.HeightGrowth <= 0 || c.Detect.ElementGrowth <= 0 {
		return errors.New("detect thresholds must be > 0")
	}
	if c.Judge.MinInterval.Duration < 0 {
		return errors.New("judge.min_interval must be >= 0")
	}
	if c.Judge.MaxRetries < 1 {
		return fmt.Errorf("judge.max_retries must be >= 1 (got %d)", c.Judge.MaxRetries)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Input = strings.TrimSpace(c.Input)
	c.Output = strings.TrimSpace(c.Output)
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	c.Judge.Model = strings.TrimSpace(c.Judge.Model)
	c.Judge.APIKeyEnv = strings.TrimSpace(c.Judge.APIKeyEnv)

	if len(c.Robots.Overrides) > 0 {
		unique := make(map[string]struct{}, len(c.Robots.Overrides))
		cleaned := make([]string, 0, len(c.Robots.Overrides))
		for _, raw := range c.Robots.Overrides {
			host := strings.ToLower(strings.TrimSpace(raw))
			if host == "" {
				continue
			}
			if _, exists := unique[host]; exists {
				continue
			}
			unique[host] = struct{}{}
			cleaned = append(cleaned, host)
		}
		sort.Strings(cleaned)
		c.Robots.Overrides = cleaned
	}
}
