package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/chunkdb",
		LogDir:   "/home/user/.local/share/chunkdb/log",
		LogLevel: "debug",
		Database: DatabaseConfig{Type: "mysql", DSN: "app:secret@tcp(db:3306)/chunks?parseTime=true"},
		Chunks: ChunkConfig{
			Size:         4096,
			Mode:         "deferred",
			Hash:         "sha256",
			Strict:       true,
			VerifyHashes: true,
		},
		Cache:   CacheConfig{Type: "redis", Addr: "localhost:6379", DB: 2, TTL: "1m"},
		Staging: StagingConfig{Type: "filesystem", StagingDir: "/tmp/chunkdb-staging", MaxSize: 1 << 20},
		Tracing: TracingConfig{Enabled: true, Endpoint: "localhost:4318", Insecure: true, ServiceName: "chunkdb-test"},
		Encryption: EncryptionConfig{
			RecipientsPath: "/home/user/.config/chunkdb/recipients.txt",
			IdentityPath:   "/home/user/.config/chunkdb/identity.txt",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Chunks != original.Chunks {
		t.Errorf("Chunks = %+v, want %+v", got.Chunks, original.Chunks)
	}
	if got.Cache != original.Cache {
		t.Errorf("Cache = %+v, want %+v", got.Cache, original.Cache)
	}
	if got.Staging != original.Staging {
		t.Errorf("Staging = %+v, want %+v", got.Staging, original.Staging)
	}
	if got.Tracing != original.Tracing {
		t.Errorf("Tracing = %+v, want %+v", got.Tracing, original.Tracing)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
}

func TestManager_Read_Partial(t *testing.T) {
	input := `
base_dir = "/srv/chunkdb"

[database]
type = "memory"

[chunks]
size = 512
`
	m := &Manager{}
	got, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
	}
	if got.Chunks.Size != 512 {
		t.Errorf("Chunks.Size = %d, want 512", got.Chunks.Size)
	}
	if got.Cache.Type != "" {
		t.Errorf("Cache.Type = %q, want empty", got.Cache.Type)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("[chunks\nsize = ")); err == nil {
		t.Fatal("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/chunkdb")

	if cfg.BaseDir != "/data/chunkdb" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/chunkdb")
	}
	if cfg.LogDir != "/data/chunkdb/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/chunkdb/log")
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, "sqlite")
	}
	if cfg.Database.DataDir != "/data/chunkdb/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/chunkdb/db")
	}
	if cfg.Chunks.Mode != "eager" {
		t.Errorf("Chunks.Mode = %q, want %q", cfg.Chunks.Mode, "eager")
	}
	if cfg.Chunks.Hash != "sha256" {
		t.Errorf("Chunks.Hash = %q, want %q", cfg.Chunks.Hash, "sha256")
	}
	if cfg.Staging.Type != "filesystem" || cfg.Staging.StagingDir != "/data/chunkdb/staging" {
		t.Errorf("Staging = %+v, want filesystem under /data/chunkdb/staging", cfg.Staging)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "chunkdb.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chunkdb.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chunkdb.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}
		cfg.Chunks.Size = 1024

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
		if got.Chunks.Size != 1024 {
			t.Errorf("Chunks.Size = %d, want 1024", got.Chunks.Size)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/chunkdb.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
