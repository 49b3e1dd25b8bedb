package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// FoundryLoader reads the source layout out of a project's foundry.toml
type FoundryLoader struct{}

// NewFoundryLoader creates a new FoundryLoader
func NewFoundryLoader() *FoundryLoader {
	return &FoundryLoader{}
}

// Load parses foundry.toml. Projects without one get an empty config.
func (l *FoundryLoader) Load(projectPath string) (*config.FoundryConfig, error) {
	foundryPath := filepath.Join(projectPath, "foundry.toml")
	if _, err := os.Stat(foundryPath); os.IsNotExist(err) {
		return &config.FoundryConfig{}, nil
	}

	var cfg config.FoundryConfig
	if _, err := toml.DecodeFile(foundryPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foundry.toml: %w", err)
	}
	return &cfg, nil
}

var _ usecase.ProjectLayoutLoader = (*FoundryLoader)(nil)
