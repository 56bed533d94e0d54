package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for chunkdb.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Database   DatabaseConfig   `toml:"database"`
	Chunks     ChunkConfig      `toml:"chunks"`
	Cache      CacheConfig      `toml:"cache"`
	Staging    StagingConfig    `toml:"staging"`
	Tracing    TracingConfig    `toml:"tracing"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// DatabaseConfig represents configuration for the chunk store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "mysql"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // only used for type=mysql; must include parseTime=true
}

// ChunkConfig controls how files are split and read back.
type ChunkConfig struct {
	Size         int    `toml:"size"`          // bytes per chunk; 0 means the library default
	Mode         string `toml:"mode"`          // "deferred" or "eager"
	Hash         string `toml:"hash"`          // "sha256" or "" for none
	Strict       bool   `toml:"strict"`        // broken chains are errors instead of warnings
	VerifyHashes bool   `toml:"verify_hashes"` // check chunk hashes while reading
}

// CacheConfig represents configuration for the file info cache.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type     string `toml:"type"`               // "" (disabled), "memory" or "redis"
	Addr     string `toml:"addr,omitempty"`     // host:port
	Password string `toml:"password,omitempty"` // optional
	DB       int    `toml:"db,omitempty"`
	TTL      string `toml:"ttl,omitempty"` // Go duration, defaults to 10m
}

// StagingConfig represents configuration for the staging area that spools
// streams of unknown length before they are chunked.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"; empty spools to the system temp dir
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total size in bytes; defaults to 1GiB
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint,omitempty"` // host:port of the OTLP HTTP collector
	Insecure    bool   `toml:"insecure,omitempty"`
	ServiceName string `toml:"service_name,omitempty"`
}

// EncryptionConfig holds the age files used by get and put.
type EncryptionConfig struct {
	RecipientsPath string `toml:"recipients_path,omitempty"` // default recipients for get --encrypt
	IdentityPath   string `toml:"identity_path,omitempty"`   // identities for put --decrypt
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Chunks: ChunkConfig{
			Mode: "eager",
			Hash: "sha256",
		},
		Staging: StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(baseDir, "staging"),
		},
		Tracing: TracingConfig{
			ServiceName: "chunkdb",
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
