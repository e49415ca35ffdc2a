package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultIsValid tests that the defaults pass validation
func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default configuration invalid: %v", err)
	}
}

// TestLoadOverridesDefaults tests YAML loading over defaults
func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b4ae.yaml")
	content := []byte(`
profile: strict
handshake:
  cipher_suite: hybrid
  timeout: 10s
fragmentation:
  mtu: 1200
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Profile != "strict" {
		t.Errorf("Profile = %q, expected strict", cfg.Profile)
	}
	if cfg.Handshake.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, expected 10s", cfg.Handshake.Timeout)
	}
	if cfg.Fragmentation.MTU != 1200 {
		t.Errorf("MTU = %d, expected 1200", cfg.Fragmentation.MTU)
	}

	// Untouched fields keep their defaults
	if cfg.Session.FailureThreshold != 16 {
		t.Errorf("FailureThreshold = %d, expected default 16", cfg.Session.FailureThreshold)
	}
}

// TestValidateRejectsStrictWithClassicalSuite tests profile/suite consistency
func TestValidateRejectsStrictWithClassicalSuite(t *testing.T) {
	cfg := Default()
	cfg.Profile = "strict"
	cfg.Handshake.CipherSuite = "aes256gcm"

	if err := cfg.Validate(); err == nil {
		t.Error("Strict profile with classical suite passed validation")
	}
}

// TestValidateRejectsUnknownValues tests enumeration checks
func TestValidateRejectsUnknownValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Profile = "paranoid" },
		func(c *Config) { c.Handshake.CipherSuite = "rot13" },
		func(c *Config) { c.Handshake.Timeout = 0 },
		func(c *Config) { c.Handshake.MaxMessageSize = 0 },
		func(c *Config) { c.Fragmentation.MTU = 100 },
		func(c *Config) { c.Transport.Type = "carrier-pigeon" },
		func(c *Config) { c.Audit.Sink = "blockchain" },
	}

	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("Case %d passed validation", i)
		}
	}
}

// TestLoadMissingFile tests the error path
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}
