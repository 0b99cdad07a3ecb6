package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PAYFLOW_API_URL", "")

	cfg, err := Parse([]byte("log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Log.Level)
	}
	if cfg.Payflow.PollInterval != 3*time.Second {
		t.Errorf("expected 3s poll interval, got %v", cfg.Payflow.PollInterval)
	}
	if cfg.Scheduler.CleanupInterval != 5*time.Minute || cfg.Scheduler.LinkMaxAge != 10*time.Minute {
		t.Errorf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Server.BasePath != "/api" {
		t.Errorf("expected /api base path, got %s", cfg.Server.BasePath)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PAYFLOW_API_URL", "http://localhost:8080/api")

	cfg, err := Parse([]byte("database:\n  url: postgres://yaml\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "postgres://env" {
		t.Errorf("env should override yaml, got %s", cfg.Database.URL)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected secret from env")
	}
	if cfg.Payflow.APIURL != "http://localhost:8080/api" {
		t.Errorf("unexpected api url %s", cfg.Payflow.APIURL)
	}
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateServer(); err == nil {
		t.Fatal("expected error for empty config")
	}
	cfg.Database.URL = "postgres://x"
	cfg.Redis.URL = "redis://x"
	cfg.Auth.JWTSecret = "k"
	if err := cfg.ValidateServer(); err == nil {
		t.Fatal("expected api key to be required outside sandbox")
	}
	cfg.Pi.Sandbox = true
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("redis:\n  url: redis://localhost:6379/0\npayflow:\n  api_url: http://api\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := LoadConfig(fs, []string{"-config", path, "-dev"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev mode")
	}
	if err := cfg.ValidateClient(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
