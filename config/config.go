// Package config defines the Taskhive application configuration.
//
// Settings are layered: built-in defaults, then an optional YAML file,
// then TASKHIVE_-prefixed environment variables (TASKHIVE_SERVER_ADDR
// maps to server.addr).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TASKHIVE_"

// listKeys are the settings that hold a slice; their environment
// values are comma-separated.
var listKeys = map[string]bool{
	"server.cors_origins": true,
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Config is the top-level Taskhive configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Supabase  SupabaseConfig  `koanf:"supabase"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	AI        AIConfig        `koanf:"ai"`
	Auth      AuthConfig      `koanf:"auth"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	LogLevel  string          `koanf:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr            string   `koanf:"addr"`
	CORSOrigins     []string `koanf:"cors_origins"`
	RatePerMinute   int      `koanf:"rate_per_minute"`
	DefaultPageSize int      `koanf:"default_page_size"`
	MaxPageSize     int      `koanf:"max_page_size"`
}

// SupabaseConfig points at the hosted data and auth APIs.
type SupabaseConfig struct {
	URL        string `koanf:"url"`
	AnonKey    string `koanf:"anon_key"`
	ServiceKey string `koanf:"service_key"`
}

// SMTPConfig carries reminder email delivery credentials.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

// MQTTConfig points at the task-event broker.
type MQTTConfig struct {
	Broker      string `koanf:"broker"`
	Port        int    `koanf:"port"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	TopicPrefix string `koanf:"topic_prefix"`
}

// AIConfig selects and configures the LLM provider.
type AIConfig struct {
	Provider        string `koanf:"provider"` // "anthropic", "openai", "mock"
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	Model           string `koanf:"model"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret         string `koanf:"jwt_secret"`
	AccessExpiryMins  int    `koanf:"access_expiry_mins"`
	RefreshExpiryDays int    `koanf:"refresh_expiry_days"`
}

// SchedulerConfig controls the reminder scheduler.
type SchedulerConfig struct {
	IntervalMinutes int `koanf:"interval_minutes"`
	FetchLimit      int `koanf:"fetch_limit"`
	MaxSentKeys     int `koanf:"max_sent_keys"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"addr":              ":8000",
			"cors_origins":      []string{"http://localhost:5173", "http://localhost:3000"},
			"rate_per_minute":   60,
			"default_page_size": 20,
			"max_page_size":     100,
		},
		"supabase": map[string]interface{}{
			"url":         "",
			"anon_key":    "",
			"service_key": "",
		},
		"smtp": map[string]interface{}{
			"host":     "smtp.gmail.com",
			"port":     587,
			"email":    "",
			"password": "",
		},
		"mqtt": map[string]interface{}{
			"broker":       "broker.hivemq.com",
			"port":         1883,
			"username":     "",
			"password":     "",
			"topic_prefix": "taskhive",
		},
		"ai": map[string]interface{}{
			"provider":          "anthropic",
			"anthropic_api_key": "",
			"openai_api_key":    "",
			"model":             "",
		},
		"auth": map[string]interface{}{
			"jwt_secret":          "",
			"access_expiry_mins":  30,
			"refresh_expiry_days": 7,
		},
		"scheduler": map[string]interface{}{
			"interval_minutes": 5,
			"fetch_limit":      1000,
			"max_sent_keys":    1000,
		},
		"log_level": "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if key != "log_level" {
			key = strings.Replace(key, "_", ".", 1)
		}
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that have no workable default.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("supabase.url is required (TASKHIVE_SUPABASE_URL)")
	}
	if c.Supabase.ServiceKey == "" {
		return fmt.Errorf("supabase.service_key is required (TASKHIVE_SUPABASE_SERVICE_KEY)")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (TASKHIVE_AUTH_JWT_SECRET)")
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.interval_minutes must be positive")
	}
	return nil
}
