package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	JobsDir            string
	JobsKeepMax        int
	FrontendDir        string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	XAIAPIKey          string
	XAIModel           string
	XAIBaseURL         string
	LLMTimeout         time.Duration
	StreamPollInterval time.Duration
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		JobsDir:            getEnv("JOBS_DIR", "tmp/jobs"),
		JobsKeepMax:        getEnvInt("JOBS_KEEP_MAX", 10),
		FrontendDir:        os.Getenv("FRONTEND_DIR"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-5.1"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		XAIAPIKey:          os.Getenv("XAI_API_KEY"),
		XAIModel:           getEnv("XAI_MODEL", "grok-3"),
		XAIBaseURL:         getEnv("XAI_BASE_URL", "https://api.x.ai/v1"),
		LLMTimeout:         time.Second * time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 300)),
		StreamPollInterval: time.Millisecond * time.Duration(getEnvInt("STREAM_POLL_INTERVAL_MS", 500)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	// Long-lived SSE responses cannot survive a write deadline, so the
	// default write timeout stays disabled.
	if cfg.JobsKeepMax < 1 {
		cfg.JobsKeepMax = 1
	}
	if cfg.StreamPollInterval <= 0 {
		return nil, fmt.Errorf("STREAM_POLL_INTERVAL_MS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
