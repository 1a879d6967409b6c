package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv      = "NEWSDIGEST_CONFIG"
	logLevelEnv        = "NEWSDIGEST_LOG_LEVEL"
	outputDirEnv       = "NEWSDIGEST_OUTPUT_DIR"
	backupDSNEnv       = "NEWSDIGEST_BACKUP_DSN"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	redditClientIDEnv  = "REDDIT_CLIENT_ID"
	redditSecretEnv    = "REDDIT_CLIENT_SECRET"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	filterCostLimitEnv = "NEWSDIGEST_FILTER_COST_LIMIT_USD"
)

// Provider names a text-generation backend.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	LLM           LLMConfig          `yaml:"llm"`
	Sources       SourcesConfig      `yaml:"sources"`
	Digest        DigestConfig       `yaml:"digest"`
	Web           WebConfig          `yaml:"web"`
	Backup        BackupConfig       `yaml:"backup"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Secrets       Secrets            `yaml:"-"`
}

// LoggingConfig selects the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LLMConfig groups the two models a run talks to.
type LLMConfig struct {
	Filter  FilterModelConfig  `yaml:"filterModel"`
	Summary SummaryModelConfig `yaml:"summaryModel"`
}

// FilterModelConfig drives the token-budgeted relevance filter.
type FilterModelConfig struct {
	Provider                   string  `yaml:"provider"`
	Name                       string  `yaml:"name"`
	Endpoint                   string  `yaml:"endpoint"`
	QueryCostLimitUSD          float64 `yaml:"queryCostLimitUsd"`
	PromptToCompletionLenRatio float64 `yaml:"promptToCompletionLenRatio"`
	// ContextSizeLimit caps the context size; zero means "whatever the model supports".
	ContextSizeLimit int `yaml:"contextSizeLimit"`
	// Per-million-token prices for models missing from the built-in table. Both or neither.
	PromptCostPerMillionUSD     float64 `yaml:"promptCostPerMillionUsd"`
	CompletionCostPerMillionUSD float64 `yaml:"completionCostPerMillionUsd"`
}

// HasRates reports whether token prices are configured explicitly.
func (f FilterModelConfig) HasRates() bool {
	return f.PromptCostPerMillionUSD != 0 || f.CompletionCostPerMillionUSD != 0
}

// SummaryModelConfig drives the character-priced summarizer.
type SummaryModelConfig struct {
	Provider                   string  `yaml:"provider"`
	Name                       string  `yaml:"name"`
	Endpoint                   string  `yaml:"endpoint"`
	QueryCostLimitUSD          float64 `yaml:"queryCostLimitUsd"`
	CostPer1kCharactersUSD     float64 `yaml:"costPer1kCharactersUsd"`
	PromptToCompletionLenRatio float64 `yaml:"promptToCompletionLenRatio"`
	MaxTokens                  int     `yaml:"maxTokens"`
}

// SourcesConfig lists the sources of a digest, split by whether they ship summaries.
type SourcesConfig struct {
	WithoutSummary         []SourceConfig `yaml:"withoutSummary"`
	WithSummary            []SourceConfig `yaml:"withSummary"`
	ArticlesPerSourceLimit int            `yaml:"articlesPerSourceLimit"`
}

// SourceConfig describes a single source with optional subspaces (subreddits, etc.).
type SourceConfig struct {
	Name      string            `yaml:"name"`
	Subspaces []string          `yaml:"subspaces"`
	Options   map[string]string `yaml:"options"`
}

// DigestConfig controls where the report and the run marker live.
type DigestConfig struct {
	OutputDir   string `yaml:"outputDir"`
	StateFile   string `yaml:"stateFile"`
	Concurrency int    `yaml:"concurrency"`
	// PromptDir overrides the built-in prompt templates when set.
	PromptDir string `yaml:"promptDir"`
}

// WebConfig is shared by every HTTP-based scanner.
type WebConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries"`
	DelayMin          time.Duration `yaml:"delayMin"`
	DelayMax          time.Duration `yaml:"delayMax"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// BackupConfig selects where raw upstream responses are kept.
type BackupConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Dir    string `yaml:"dir"`
}

// SchedulerConfig defines when the digest should run in schedule mode.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	MetricsAddr    string         `yaml:"metricsAddr"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// Enabled reports whether both the token and the chat are known.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Secrets come from the environment only.
type Secrets struct {
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	RedditClientID     string
	RedditClientSecret string
}

// Load reads .env and the YAML file at path (or $NEWSDIGEST_CONFIG), then applies environment overrides.
// A missing file means defaults; an unreadable or malformed one is an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("config: %s not found, using defaults", path)
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg, nil
}

// Validate checks cross-field constraints and required secrets.
func (c Config) Validate() error {
	var errs []error

	if len(c.Sources.WithoutSummary)+len(c.Sources.WithSummary) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	if r := c.LLM.Filter.PromptToCompletionLenRatio; r <= 0 || r >= 1 {
		errs = append(errs, fmt.Errorf("llm.filterModel.promptToCompletionLenRatio must be in (0, 1), got %v", r))
	}
	if c.LLM.Summary.PromptToCompletionLenRatio <= 0 {
		errs = append(errs, errors.New("llm.summaryModel.promptToCompletionLenRatio must be positive"))
	}
	if c.LLM.Filter.QueryCostLimitUSD < 0 || c.LLM.Summary.QueryCostLimitUSD < 0 {
		errs = append(errs, errors.New("query cost limits must not be negative"))
	}
	if f := c.LLM.Filter; f.HasRates() && (f.PromptCostPerMillionUSD <= 0 || f.CompletionCostPerMillionUSD <= 0) {
		errs = append(errs, errors.New("llm.filterModel token prices must both be positive when set"))
	}
	if c.Sources.ArticlesPerSourceLimit <= 0 {
		errs = append(errs, errors.New("sources.articlesPerSourceLimit must be positive"))
	}
	for _, model := range []struct{ section, provider string }{
		{"filterModel", c.LLM.Filter.Provider},
		{"summaryModel", c.LLM.Summary.Provider},
	} {
		if err := c.checkProvider(model.section, model.provider); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c Config) checkProvider(section, provider string) error {
	switch provider {
	case ProviderOpenAI:
		if c.Secrets.OpenAIAPIKey == "" {
			return fmt.Errorf("llm.%s uses openai but %s is not set", section, openAIAPIKeyEnv)
		}
	case ProviderAnthropic:
		if c.Secrets.AnthropicAPIKey == "" {
			return fmt.Errorf("llm.%s uses anthropic but %s is not set", section, anthropicAPIKeyEnv)
		}
	default:
		return fmt.Errorf("llm.%s: unknown provider %q", section, provider)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Secrets.OpenAIAPIKey = os.Getenv(openAIAPIKeyEnv)
	c.Secrets.AnthropicAPIKey = os.Getenv(anthropicAPIKeyEnv)
	c.Secrets.RedditClientID = os.Getenv(redditClientIDEnv)
	c.Secrets.RedditClientSecret = os.Getenv(redditSecretEnv)

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.Digest.OutputDir = v
	}
	if v := os.Getenv(backupDSNEnv); v != "" {
		c.Backup.DSN = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(filterCostLimitEnv); v != "" {
		if limit, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.LLM.Filter.QueryCostLimitUSD = limit
		} else {
			log.Printf("config: ignoring %s=%q: %v", filterCostLimitEnv, v, err)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		LLM: LLMConfig{
			Filter: FilterModelConfig{
				Provider:                   ProviderOpenAI,
				Name:                       "gpt-4o-mini",
				Endpoint:                   "https://api.openai.com/v1/chat/completions",
				QueryCostLimitUSD:          0.05,
				PromptToCompletionLenRatio: 0.75,
			},
			Summary: SummaryModelConfig{
				Provider:                   ProviderAnthropic,
				Name:                       "claude-3-5-haiku-latest",
				QueryCostLimitUSD:          0.10,
				CostPer1kCharactersUSD:     0.0003,
				PromptToCompletionLenRatio: 10,
				MaxTokens:                  512,
			},
		},
		Sources: SourcesConfig{
			WithoutSummary: []SourceConfig{
				{Name: "reddit", Subspaces: []string{"MachineLearning", "LocalLLaMA"}},
				{Name: "hackernews", Options: map[string]string{"mode": "scraper"}},
				{Name: "futuretools"},
			},
			WithSummary: []SourceConfig{
				{Name: "researchhub"},
			},
			ArticlesPerSourceLimit: 10,
		},
		Digest: DigestConfig{
			OutputDir:   ".",
			StateFile:   ".newsdigest_last_run",
			Concurrency: 1,
		},
		Web: WebConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3",
			Timeout:           20 * time.Second,
			Retries:           3,
			DelayMin:          time.Second,
			DelayMax:          3 * time.Second,
			RequestsPerSecond: 10,
		},
		Backup:    BackupConfig{Driver: "file", Dir: "backup"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, MetricsAddr: ":9090", location: time.UTC},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{Endpoint: "https://api.telegram.org"},
		},
	}
}
