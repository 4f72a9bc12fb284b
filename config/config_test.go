package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr == "" {
		t.Error("expected a default listen address")
	}
	if cfg.BaseDir == "" {
		t.Error("expected a default base directory")
	}
	if cfg.PullHost == "" {
		t.Error("expected a default pull host")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TGEN_ADDR", ":9999")
	t.Setenv("TGEN_HOME", "/tmp/tgen-test")
	t.Setenv("TGEN_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.BaseDir != "/tmp/tgen-test" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}
