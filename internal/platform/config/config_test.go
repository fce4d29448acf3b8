package config

import (
	"os"
	"testing"
	"time"
)

const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testPostgresDSN    = "postgres://localhost/test"
	testErrLoad        = "Load() error = %v"
)

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.AppEnv != "local" {
		t.Errorf("AppEnv = %q, want local", cfg.AppEnv)
	}

	if cfg.WorkerConcurrency != 20 {
		t.Errorf("WorkerConcurrency = %d, want 20", cfg.WorkerConcurrency)
	}

	if cfg.BatchSize != 8 {
		t.Errorf("BatchSize = %d, want 8", cfg.BatchSize)
	}

	if cfg.DedupWindow != 168*time.Hour {
		t.Errorf("DedupWindow = %v, want 168h", cfg.DedupWindow)
	}

	if cfg.PipelineCron != "0 * * * *" {
		t.Errorf("PipelineCron = %q, want hourly", cfg.PipelineCron)
	}

	if cfg.RetryCron != "*/30 * * * *" {
		t.Errorf("RetryCron = %q, want half-hourly", cfg.RetryCron)
	}

	if cfg.AcceptMinConfidence != 70 {
		t.Errorf("AcceptMinConfidence = %d, want 70", cfg.AcceptMinConfidence)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv("WORKER_CONCURRENCY", "3")
	t.Setenv("PER_CALL_TIMEOUT", "15s")
	t.Setenv("LLM_MODEL", "openai/gpt-4o")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.WorkerConcurrency != 3 {
		t.Errorf("WorkerConcurrency = %d, want 3", cfg.WorkerConcurrency)
	}

	if cfg.PerCallTimeout != 15*time.Second {
		t.Errorf("PerCallTimeout = %v, want 15s", cfg.PerCallTimeout)
	}

	if cfg.LLMModel != "openai/gpt-4o" {
		t.Errorf("LLMModel = %q", cfg.LLMModel)
	}
}
