package chunkstore

import (
	"fmt"

	"github.com/mattcarabine/wedding-website/pkg/config"
)

// Factory creates chunk store instances based on configuration
type Factory struct {
	config *config.StorageConfig
}

// NewFactory creates a new chunk store factory
func NewFactory(config *config.StorageConfig) *Factory {
	return &Factory{config: config}
}

// CreateStore creates a chunk store instance based on the configured type
func (f *Factory) CreateStore() (BlobStore, error) {
	switch f.config.Type {
	case "local":
		return NewLocalStore(f.config.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", f.config.Type)
	}
}
