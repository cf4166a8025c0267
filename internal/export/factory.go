package export

import (
	"context"
	"fmt"

	"sentinel-go/internal/config"
	"sentinel-go/internal/sentinel"
)

// NewExporterFromConfig creates an Exporter implementation based on the
// export config type. An empty type means no exporter is configured and
// returns nil.
func NewExporterFromConfig(ctx context.Context, cfg config.ExportConfig) (sentinel.Exporter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryExporter(cfg.Name), nil
	case "s3":
		return NewS3Exporter(ctx, cfg)
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem export requires dir to be set")
		}
		return NewFileSystemExporter(cfg.Name, cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown export type: %s", cfg.Type)
	}
}
