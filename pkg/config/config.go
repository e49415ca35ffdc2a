// Package config loads and validates B4AE node configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete node configuration.
type Config struct {
	Profile       string              `yaml:"profile"` // "standard" or "strict"
	Handshake     HandshakeConfig     `yaml:"handshake"`
	Session       SessionConfig       `yaml:"session"`
	Fragmentation FragmentationConfig `yaml:"fragmentation"`
	Transport     TransportConfig     `yaml:"transport"`
	Logging       LoggingConfig       `yaml:"logging"`
	Audit         AuditConfig         `yaml:"audit"`
}

// HandshakeConfig holds handshake options.
type HandshakeConfig struct {
	CipherSuite      string        `yaml:"cipher_suite"` // "hybrid" or "aes256gcm"
	Timeout          time.Duration `yaml:"timeout"`
	RequireSignature bool          `yaml:"require_signature"`
	MaxMessageSize   uint32        `yaml:"max_message_size"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	MaxRecords       uint64        `yaml:"max_records"`
	FailureThreshold int           `yaml:"failure_threshold"`
	FailureWindow    time.Duration `yaml:"failure_window"`
}

// FragmentationConfig holds MTU and reassembly settings.
type FragmentationConfig struct {
	MTU           int           `yaml:"mtu"`
	ReassemblyTTL time.Duration `yaml:"reassembly_ttl"`
}

// TransportConfig selects the byte transport the demos use.
type TransportConfig struct {
	Type       string `yaml:"type"` // "udp", "websocket", "quic"
	ListenAddr string `yaml:"listen_addr"`
	PeerAddr   string `yaml:"peer_addr"`
	URL        string `yaml:"url"` // websocket endpoint
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	Sink     string `yaml:"sink"` // "log", "postgres", "none"
	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Profile: "standard",
		Handshake: HandshakeConfig{
			CipherSuite:      "hybrid",
			Timeout:          30 * time.Second,
			RequireSignature: true,
			MaxMessageSize:   1 << 20,
		},
		Session: SessionConfig{
			IdleTimeout:      30 * time.Minute,
			MaxRecords:       1<<32 - 1,
			FailureThreshold: 16,
			FailureWindow:    60 * time.Second,
		},
		Fragmentation: FragmentationConfig{
			MTU:           1400,
			ReassemblyTTL: 30 * time.Second,
		},
		Transport: TransportConfig{
			Type: "udp",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			Sink: "log",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Profile {
	case "standard", "strict":
	default:
		return fmt.Errorf("config: unknown profile %q", c.Profile)
	}

	switch c.Handshake.CipherSuite {
	case "hybrid", "aes256gcm":
	default:
		return fmt.Errorf("config: unknown cipher_suite %q", c.Handshake.CipherSuite)
	}

	if c.Profile == "strict" && c.Handshake.CipherSuite != "hybrid" {
		return fmt.Errorf("config: strict profile requires the hybrid cipher suite")
	}

	if c.Handshake.Timeout <= 0 {
		return fmt.Errorf("config: handshake timeout must be positive")
	}

	if c.Handshake.MaxMessageSize == 0 {
		return fmt.Errorf("config: max_message_size must be positive")
	}

	if c.Fragmentation.MTU < 256 {
		return fmt.Errorf("config: mtu of %d is too small", c.Fragmentation.MTU)
	}

	switch c.Transport.Type {
	case "udp", "websocket", "quic", "":
	default:
		return fmt.Errorf("config: unknown transport type %q", c.Transport.Type)
	}

	switch c.Audit.Sink {
	case "log", "postgres", "none", "":
	default:
		return fmt.Errorf("config: unknown audit sink %q", c.Audit.Sink)
	}

	return nil
}
