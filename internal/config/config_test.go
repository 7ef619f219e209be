package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:                    "8000",
		Env:                     "development",
		LLMBaseURL:              "http://localhost:1234",
		LLMModel:                "local",
		LLMTimeoutSeconds:       60,
		HistoryLimit:            20,
		SessionRetentionMinutes: 30,
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresSigningKeyOutsideDev(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.DatabaseURL = "postgres://localhost/wardround"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production without signing key")
	}

	cfg.AuthSigningKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected production with signing key to pass: %v", err)
	}
}

func TestValidateProductionRequiresDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "secret"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production without DATABASE_URL")
	}

	cfg.DatabaseURL = "postgres://localhost/wardround"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected production with a database to pass: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.LLMBaseURL = "" },
		func(c *Config) { c.LLMTimeoutSeconds = 0 },
		func(c *Config) { c.HistoryLimit = -1 },
		func(c *Config) { c.TLSEnabled = true },
		func(c *Config) { c.TLSEnabled = true; c.TLSCertFile = "cert.pem" },
	}
	for i, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()
	if cfg.LLMTimeout() != 60*time.Second {
		t.Errorf("LLMTimeout = %v", cfg.LLMTimeout())
	}
	if cfg.SessionRetention() != 30*time.Minute {
		t.Errorf("SessionRetention = %v", cfg.SessionRetention())
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8000" || cfg.Env != "development" {
		t.Errorf("unexpected defaults: port=%s env=%s", cfg.Port, cfg.Env)
	}
	if cfg.LLMBaseURL == "" || cfg.HistoryLimit <= 0 {
		t.Errorf("collaborator defaults missing: %+v", cfg)
	}
}
