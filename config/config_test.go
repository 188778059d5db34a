package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RELAY_CONFIG", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "YOUTUBE_BASE_URL", "YOUTUBE_DATA_API_KEY",
		"COMMUNITY_API_BASE", "COMMUNITY_MOD_BADGE_URL", "DB_DSN", "POLL_INTERVAL", "DEDUP_WINDOW",
		"DEDUP_SWEEP_INTERVAL", "CATALOG_REFRESH_INTERVAL", "RELAY_IDLE_TIMEOUT",
		"UPGRADE_RATE_PER_MINUTE", "UPGRADE_BURST", "SUBSCRIBER_BUFFER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.DedupWindow != time.Minute || cfg.DedupSweepInterval != time.Minute {
		t.Errorf("dedup defaults = %v/%v, want 1m/1m", cfg.DedupWindow, cfg.DedupSweepInterval)
	}
	if cfg.DataAPIEnabled() || cfg.CheckpointsEnabled() {
		t.Errorf("optional features should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("POLL_INTERVAL", "1s")
	t.Setenv("SUBSCRIBER_BUFFER", "8")
	t.Setenv("DB_DSN", "postgres://x")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.PollInterval != time.Second || cfg.SubscriberBuffer != 8 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.CheckpointsEnabled() {
		t.Errorf("CheckpointsEnabled() = false with DB_DSN set")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.yaml")
	body := "http_addr: \":7000\"\npoll_interval: 500ms\ncommunity_api_base: https://gw.example\nupgrade_burst: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("RELAY_CONFIG", path)
	t.Setenv("UPGRADE_BURST", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want :7000 from yaml", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms from yaml", cfg.PollInterval)
	}
	if cfg.CommunityAPIBase != "https://gw.example" {
		t.Errorf("CommunityAPIBase = %q", cfg.CommunityAPIBase)
	}
	if cfg.UpgradeBurst != 4 {
		t.Errorf("UpgradeBurst = %d, want env to win over yaml", cfg.UpgradeBurst)
	}
	if cfg.DedupWindow != time.Minute {
		t.Errorf("unset yaml keys must keep defaults, DedupWindow = %v", cfg.DedupWindow)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"POLL_INTERVAL", "soon"},
		{"POLL_INTERVAL", "0s"},
		{"DEDUP_WINDOW", "-1s"},
		{"SUBSCRIBER_BUFFER", "many"},
		{"SUBSCRIBER_BUFFER", "0"},
		{"UPGRADE_RATE_PER_MINUTE", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadMissingYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Errorf("expected error for missing RELAY_CONFIG file")
	}
}
