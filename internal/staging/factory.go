package staging

import (
	"fmt"
	"os"

	"chunkdb/internal/config"
)

// DefaultMaxSize is the default maximum staging area size (1GiB).
const DefaultMaxSize int64 = 1 << 30

// NewStagingAreaFromConfig creates a staging area based on the config type.
// An empty type spools to the system temp directory.
func NewStagingAreaFromConfig(cfg config.StagingConfig) (*Area, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(maxSize), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(cfg.StagingDir, maxSize)
	case "":
		return NewFileSystemStagingArea(os.TempDir(), maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
