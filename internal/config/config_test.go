package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "QUEUE_BACKEND", "ANALYSIS_TIMEOUT_SECONDS", "ANALYSIS_SUMMARY_MAX_WORDS", "UPLOAD_MAX_BYTES", "ANALYSIS_BREAKER_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.StoreBackend != "postgres" || cfg.QueueBackend != "nats" {
		t.Fatalf("unexpected backends: %q %q", cfg.StoreBackend, cfg.QueueBackend)
	}
	if cfg.AnalysisTimeout() != 2*time.Minute {
		t.Fatalf("expected 2m analysis timeout, got %v", cfg.AnalysisTimeout())
	}
	if cfg.AnalysisSummaryMaxWords != 200 {
		t.Fatalf("expected 200 word summary limit, got %d", cfg.AnalysisSummaryMaxWords)
	}
	if cfg.UploadMaxBytes != 10<<20 {
		t.Fatalf("expected 10MB upload limit, got %d", cfg.UploadMaxBytes)
	}
	if !cfg.AnalysisBreakerEnabled {
		t.Fatalf("expected breaker enabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("ANALYSIS_TIMEOUT_SECONDS", "30")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("LOCK_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.StoreBackend != "mongo" {
		t.Fatalf("expected mongo backend, got %q", cfg.StoreBackend)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.AnalysisTimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.AnalysisTimeout())
	}
	if !cfg.MinIOUseSSL {
		t.Fatalf("expected ssl enabled")
	}
	if cfg.LockTTL() != 5*time.Minute {
		t.Fatalf("invalid value must fall back to default, got %v", cfg.LockTTL())
	}
}
