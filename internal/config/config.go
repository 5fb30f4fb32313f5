package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "MARKET_SCANNER_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	databaseDriverEnv  = "DATABASE_DRIVER"
	openAIKeyEnv       = "OPENAI_API_KEY"
	anthropicKeyEnv    = "ANTHROPIC_API_KEY"
	llmProviderEnv     = "LLM_PROVIDER"
	llmModelEnv        = "LLM_MODEL"
	redisURLEnv        = "REDIS_URL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	finnhubKeyEnv      = "FINNHUB_API_KEY"
	httpAddrEnv        = "HTTP_ADDR"
	logLevelEnv        = "LOG_LEVEL"
	finnhubSourceKind  = "finnhub"
	defaultModelOpenAI = "gpt-4o-mini"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	LLM           LLMConfig          `yaml:"llm"`
	ML            MLConfig           `yaml:"ml"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Sessions      SessionsConfig     `yaml:"sessions"`
	HTTP          HTTPConfig         `yaml:"http"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig selects slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the durable store. An empty DSN disables it.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the shared rate-limit window store when URL is set.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// SchedulerConfig defines when sessions start automatically.
type SchedulerConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LLMConfig selects the hosted model provider.
type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"baseUrl"`
	OpenAIKey    string        `yaml:"openaiApiKey"`
	AnthropicKey string        `yaml:"anthropicApiKey"`
	MaxTokens    int           `yaml:"maxTokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MLConfig points at a self-hosted inference service (provider "http").
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// RateLimitConfig is a per-domain request budget.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RetryConfig is the backoff policy for one kind of outbound call.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Base        time.Duration `yaml:"base"`
	Max         time.Duration `yaml:"max"`
	Jitter      float64       `yaml:"jitter"`
}

// FetcherConfig tunes scraping.
type FetcherConfig struct {
	UserAgent     string                     `yaml:"userAgent"`
	Timeout       time.Duration              `yaml:"timeout"`
	MaxPages      int                        `yaml:"maxPages"`
	MaxBodyChars  int                        `yaml:"maxBodyChars"`
	RespectRobots bool                       `yaml:"respectRobots"`
	RateLimit     RateLimitConfig            `yaml:"rateLimit"`
	Domains       map[string]RateLimitConfig `yaml:"domains"`
	Retry         RetryConfig                `yaml:"retry"`
}

// ClassifierConfig sizes the shared classification pool.
type ClassifierConfig struct {
	Workers int         `yaml:"workers"`
	Retry   RetryConfig `yaml:"retry"`
}

// SessionDefaults are applied to scheduled sessions and to requests that
// omit fields.
type SessionDefaults struct {
	MaxPositions  int      `yaml:"maxPositions"`
	MinConfidence float64  `yaml:"minConfidence"`
	Model         string   `yaml:"model"`
	Sources       []string `yaml:"sources"`
}

// SessionsConfig controls session bookkeeping.
type SessionsConfig struct {
	Retention        time.Duration   `yaml:"retention"`
	HistorySize      int             `yaml:"historySize"`
	SubscriberBuffer int             `yaml:"subscriberBuffer"`
	PersistQueue     int             `yaml:"persistQueue"`
	ActivityDir      string          `yaml:"activityDir"`
	Defaults         SessionDefaults `yaml:"defaults"`
}

// HTTPConfig configures the REST surface.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// SourceConfig describes a single news source and its connector kind
// (rss, listing or finnhub).
type SourceConfig struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	URL      string            `yaml:"url"`
	APIKey   string            `yaml:"apiKey"`
	Options  map[string]string `yaml:"options"`
	Disallow []string          `yaml:"disallow"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := defaultConfig()
			fileCfg.Sources = nil
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				if len(fileCfg.Sources) == 0 {
					fileCfg.Sources = cfg.Sources
				}
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.LLM.OpenAIKey = v
	}
	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.LLM.AnthropicKey = v
	}

	if v := os.Getenv(finnhubKeyEnv); v != "" {
		for i := range c.Sources {
			if c.Sources[i].Kind == finnhubSourceKind && c.Sources[i].APIKey == "" {
				c.Sources[i].APIKey = v
			}
		}
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
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
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// SourceNames lists configured source names in file order.
func (c Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		names = append(names, s.Name)
	}
	return names
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{Driver: "postgres"},
		Redis:     RedisConfig{KeyPrefix: "marketscanner:ratelimit:"},
		Scheduler: SchedulerConfig{Enabled: false, Interval: time.Hour, Timezone: defaultTimezone, location: tz},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     defaultModelOpenAI,
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:     "MarketScanner/1.0",
			Timeout:       20 * time.Second,
			MaxPages:      5,
			MaxBodyChars:  6000,
			RespectRobots: true,
			RateLimit:     RateLimitConfig{Limit: 10, Window: time.Minute},
			Retry:         RetryConfig{MaxAttempts: 4, Base: time.Second, Max: 16 * time.Second, Jitter: 0.2},
		},
		Classifier: ClassifierConfig{
			Workers: 5,
			Retry:   RetryConfig{MaxAttempts: 4, Base: time.Second, Max: 16 * time.Second, Jitter: 0.2},
		},
		Sessions: SessionsConfig{
			Retention:        24 * time.Hour,
			HistorySize:      50,
			SubscriberBuffer: 64,
			PersistQueue:     256,
			Defaults: SessionDefaults{
				MaxPositions:  10,
				MinConfidence: 0.6,
			},
		},
		HTTP: HTTPConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
		Sources: []SourceConfig{
			{
				Name: "google-news-markets",
				Kind: "rss",
				URL:  "https://news.google.com/rss/search?q=stock+market&hl=en-US&gl=US&ceid=US:en",
			},
		},
	}
}
