package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = "3000"
	DefaultMaxUploadBytes = 10 << 20
	DefaultTimeoutSec     = 180
	DefaultLLM            = "anthropic"
)

type Config struct {
	Port           string `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	TimeoutSec     int    `yaml:"request_timeout_sec"`
	StaticDir      string `yaml:"static_dir"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`

	DefaultLLM       string `yaml:"default_llm"`
	MaxTokens        int    `yaml:"max_tokens"`
	UpstreamAttempts int    `yaml:"upstream_attempts"`
	PromptFile       string `yaml:"prompt_file"`

	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicModel   string `yaml:"anthropic_model"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	GeminiAPIKey     string `yaml:"gemini_api_key"`
	GeminiModel      string `yaml:"gemini_model"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIModel      string `yaml:"openai_model"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	WebhookURL       string `yaml:"webhook_url"`
}

func defaults() *Config {
	return &Config{
		Port:             DefaultPort,
		MaxUploadBytes:   DefaultMaxUploadBytes,
		TimeoutSec:       DefaultTimeoutSec,
		StaticDir:        "public",
		LogLevel:         "info",
		LogFormat:        "json",
		DefaultLLM:       DefaultLLM,
		MaxTokens:        4096,
		UpstreamAttempts: 1,
		AnthropicModel:   "claude-sonnet-4-20250514",
		GeminiModel:      "gemini-2.5-flash",
		OpenAIModel:      "gpt-4o-mini",
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the environment.
// Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.TimeoutSec = getEnvInt("REQUEST_TIMEOUT_SEC", c.TimeoutSec)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DefaultLLM = getEnv("DEFAULT_LLM", c.DefaultLLM)
	c.MaxTokens = getEnvInt("MAX_TOKENS", c.MaxTokens)
	c.UpstreamAttempts = getEnvInt("UPSTREAM_ATTEMPTS", c.UpstreamAttempts)
	c.PromptFile = getEnv("PROMPT_FILE", c.PromptFile)

	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = getEnv("ANTHROPIC_MODEL", c.AnthropicModel)
	c.AnthropicBaseURL = getEnv("ANTHROPIC_BASE_URL", c.AnthropicBaseURL)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)

	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
}

// Validate checks that the default engine has credentials.
func (c *Config) Validate() error {
	if c.AnthropicAPIKey == "" && c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		return errors.New("no model credentials: set ANTHROPIC_API_KEY, GEMINI_API_KEY or OPENAI_API_KEY")
	}
	if !c.HasKeyFor(c.DefaultLLM) {
		return errors.Errorf("DEFAULT_LLM %q has no API key configured", c.DefaultLLM)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.TimeoutSec <= 0 {
		return errors.New("REQUEST_TIMEOUT_SEC must be > 0")
	}
	return nil
}

// ValidateBot additionally requires a Telegram token.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TelegramBotToken == "" {
		return errors.New("missing required env TELEGRAM_BOT_TOKEN")
	}
	return nil
}

func (c *Config) HasKeyFor(llm string) bool {
	switch strings.ToLower(strings.TrimSpace(llm)) {
	case "anthropic", "claude":
		return c.AnthropicAPIKey != ""
	case "gemini":
		return c.GeminiAPIKey != ""
	case "openai", "gpt":
		return c.OpenAIAPIKey != ""
	}
	return false
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k))); err == nil && v > 0 {
		return v
	}
	return def
}
