package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadClampsSettingsTTL(t *testing.T) {
	t.Setenv("SETTINGS_TTL_SECONDS", "-3")

	cfg := Load()
	if cfg.SettingsTTLSeconds != 30 {
		t.Fatalf("expected fallback TTL of 30, got %d", cfg.SettingsTTLSeconds)
	}
}
