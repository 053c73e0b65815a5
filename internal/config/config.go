package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every subsystem's settings.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Calendar CalendarConfig
	Identity IdentityConfig
	Session  SessionConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech := loadSpeechConfig()

	calendar, err := loadCalendarConfig()
	if err != nil {
		return nil, err
	}

	identity, err := loadIdentityConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Speech:   speech,
		Calendar: calendar,
		Identity: identity,
		Session:  session,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the chat model used for slot extraction.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	MaxTokens      *int
	ExtractTimeout time.Duration
	ExtractRetries int
}

// Enabled reports whether the required model credentials are present. The
// interpreter falls back to rule-based extraction when they are not.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or AK/SK")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 8
	if override, err := parseOptionalIntEnv("NLU_REQUEST_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	retries := 2
	if override, err := parseOptionalIntEnv("NLU_MAX_RETRIES"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override >= 0 {
		retries = *override
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ExtractTimeout: time.Duration(timeoutSeconds) * time.Second,
		ExtractRetries: retries,
	}, nil
}

// SpeechConfig describes the Deepgram STT/TTS collaborators.
type SpeechConfig struct {
	APIKey   string
	STTModel string
	Language string
	TTSVoice string
	Enabled  bool
}

func loadSpeechConfig() SpeechConfig {
	apiKey := strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))
	return SpeechConfig{
		APIKey:   apiKey,
		STTModel: getEnvOrDefault("DEEPGRAM_STT_MODEL", "nova-3"),
		Language: getEnvOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
		TTSVoice: getEnvOrDefault("DEEPGRAM_TTS_VOICE", "aura-2-thalia-en"),
		Enabled:  apiKey != "",
	}
}

// CalendarConfig describes the calendar backend collaborator.
type CalendarConfig struct {
	BaseURL    string
	CalendarID string
	Timeout    time.Duration
	MaxRetries int
}

func loadCalendarConfig() (CalendarConfig, error) {
	baseURL := strings.TrimSpace(os.Getenv("CALENDAR_BASE_URL"))
	if baseURL == "" {
		return CalendarConfig{}, fmt.Errorf("CALENDAR_BASE_URL is required")
	}

	timeoutSeconds := 15
	if override, err := parseOptionalIntEnv("CALENDAR_TIMEOUT"); err != nil {
		return CalendarConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	retries := 2
	if override, err := parseOptionalIntEnv("CALENDAR_MAX_RETRIES"); err != nil {
		return CalendarConfig{}, err
	} else if override != nil && *override >= 0 {
		retries = *override
	}

	return CalendarConfig{
		BaseURL:    baseURL,
		CalendarID: getEnvOrDefault("CALENDAR_ID", "primary"),
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
		MaxRetries: retries,
	}, nil
}

// IdentityConfig describes the token verification collaborator.
type IdentityConfig struct {
	VerifyURL string
	Timeout   time.Duration
}

func loadIdentityConfig() (IdentityConfig, error) {
	verifyURL := strings.TrimSpace(os.Getenv("IDENTITY_VERIFY_URL"))
	if verifyURL == "" {
		return IdentityConfig{}, fmt.Errorf("IDENTITY_VERIFY_URL is required")
	}

	timeoutSeconds := 10
	if override, err := parseOptionalIntEnv("IDENTITY_TIMEOUT"); err != nil {
		return IdentityConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	return IdentityConfig{
		VerifyURL: verifyURL,
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// SessionConfig describes per-session behavior.
type SessionConfig struct {
	Timezone    string
	IdleTimeout time.Duration
}

// Location resolves the configured timezone, falling back to UTC.
func (c SessionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadSessionConfig() (SessionConfig, error) {
	idleSeconds := 120
	if override, err := parseOptionalIntEnv("SESSION_IDLE_TIMEOUT"); err != nil {
		return SessionConfig{}, err
	} else if override != nil && *override > 0 {
		idleSeconds = *override
	}

	return SessionConfig{
		Timezone:    getEnvOrDefault("SESSION_TIMEZONE", "UTC"),
		IdleTimeout: time.Duration(idleSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
