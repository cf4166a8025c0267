package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for sentinel.
type Config struct {
	HostID        string           `toml:"host_id"`
	BaseDir       string           `toml:"base_dir"`
	LogDir        string           `toml:"log_dir"`
	QuarantineDir string           `toml:"quarantine_dir"`
	Signatures    SignaturesConfig `toml:"signatures"`
	Heuristics    HeuristicsConfig `toml:"heuristics"`
	Restore       RestoreConfig    `toml:"restore"`
	Database      DatabaseConfig   `toml:"database"`
	Export        ExportConfig     `toml:"export"`
	Encryption    EncryptionConfig `toml:"encryption"`
}

// SignaturesConfig points at the signature definition file.
type SignaturesConfig struct {
	Path string `toml:"path"`
}

// HeuristicsConfig holds the heuristic analyzer preference.
// Enabled is a pointer so that an absent key means "enabled" rather than false.
type HeuristicsConfig struct {
	Enabled *bool `toml:"enabled,omitempty"`
}

// HeuristicsEnabled reports the effective preference; absence means enabled.
func (c *Config) HeuristicsEnabled() bool {
	if c.Heuristics.Enabled == nil {
		return true
	}
	return *c.Heuristics.Enabled
}

// RestoreConfig controls whether this installation may write quarantined
// files back to their original locations. Sandboxed installs run with
// enabled = false and use export instead.
type RestoreConfig struct {
	Enabled bool `toml:"enabled"`
}

// DatabaseConfig represents configuration for the quarantine index database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ExportConfig represents configuration for an export destination.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ExportConfig struct {
	Type string `toml:"type"` // "filesystem", "s3", or "memory"
	Name string `toml:"name"`

	// Filesystem-specific field (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for at-rest
// encryption of quarantine copies.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:        hostID,
		BaseDir:       baseDir,
		LogDir:        filepath.Join(baseDir, "log"),
		QuarantineDir: filepath.Join(baseDir, "quarantine"),
		Signatures: SignaturesConfig{
			Path: filepath.Join(baseDir, "signatures.txt"),
		},
		Restore: RestoreConfig{Enabled: true},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "sentinel.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "sentinel.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
