package backup

import (
	"context"
	"fmt"

	"unitprice/internal/config"
)

// NewDestinationFromConfig creates a Destination based on the backup config type.
func NewDestinationFromConfig(cfg config.BackupConfig) (Destination, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDestination(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem backup requires root to be set")
		}
		return NewFileSystemDestination(cfg.Root)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 backup requires s3_bucket to be set")
		}
		return NewS3DestinationFromConfig(context.Background(), cfg)
	case "":
		return nil, fmt.Errorf("backups are not configured")
	default:
		return nil, fmt.Errorf("unknown backup type: %s", cfg.Type)
	}
}
