package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Server.MaxPageSize != 100 {
		t.Errorf("MaxPageSize = %d, want 100", cfg.Server.MaxPageSize)
	}
	if cfg.Auth.AccessExpiryMins != 30 {
		t.Errorf("AccessExpiryMins = %d, want 30", cfg.Auth.AccessExpiryMins)
	}
	if cfg.Auth.RefreshExpiryDays != 7 {
		t.Errorf("RefreshExpiryDays = %d, want 7", cfg.Auth.RefreshExpiryDays)
	}
	if cfg.Scheduler.IntervalMinutes != 5 {
		t.Errorf("IntervalMinutes = %d, want 5", cfg.Scheduler.IntervalMinutes)
	}
	if cfg.Scheduler.MaxSentKeys != 1000 {
		t.Errorf("MaxSentKeys = %d, want 1000", cfg.Scheduler.MaxSentKeys)
	}
	if cfg.MQTT.TopicPrefix != "taskhive" {
		t.Errorf("TopicPrefix = %q, want taskhive", cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TASKHIVE_SERVER_ADDR", ":9999")
	t.Setenv("TASKHIVE_SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("TASKHIVE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Supabase.URL != "https://example.supabase.co" {
		t.Errorf("Supabase.URL = %q", cfg.Supabase.URL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvListValue(t *testing.T) {
	t.Setenv("TASKHIVE_SERVER_CORS_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://app.example.com", "https://staging.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing supabase url")
	}

	cfg.Supabase.URL = "https://example.supabase.co"
	cfg.Supabase.ServiceKey = "service-key"
	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
