package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// DeploymentHistoryFile is written at the root of each deployed project
const DeploymentHistoryFile = "kv-deploy.json"

// DeploymentHistoryAdapter implements DeploymentHistoryStore using the file system
type DeploymentHistoryAdapter struct{}

// NewDeploymentHistoryAdapter creates a new DeploymentHistoryAdapter
func NewDeploymentHistoryAdapter() *DeploymentHistoryAdapter {
	return &DeploymentHistoryAdapter{}
}

// Load reads the history of a project. Returns an empty history if the file does not exist.
func (a *DeploymentHistoryAdapter) Load(projectPath string) (*domain.DeploymentHistory, error) {
	data, err := os.ReadFile(filepath.Join(projectPath, DeploymentHistoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.DeploymentHistory{Versions: []domain.DeploymentVersion{}}, nil
		}
		return nil, fmt.Errorf("failed to read deployment history: %w", err)
	}

	var history domain.DeploymentHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse deployment history: %w", err)
	}
	if history.Versions == nil {
		history.Versions = []domain.DeploymentVersion{}
	}
	return &history, nil
}

// Append numbers version after the current one and writes the history back
func (a *DeploymentHistoryAdapter) Append(projectPath string, version domain.DeploymentVersion) (*domain.DeploymentHistory, error) {
	history, err := a.Load(projectPath)
	if err != nil {
		return nil, err
	}

	version.Version = history.CurrentVersion + 1
	if version.Contracts == nil {
		version.Contracts = []domain.DeployedContract{}
	}
	history.Versions = append(history.Versions, version)
	history.CurrentVersion = version.Version

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deployment history: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(projectPath, DeploymentHistoryFile), data); err != nil {
		return nil, fmt.Errorf("failed to write deployment history: %w", err)
	}
	return history, nil
}

// Ensure DeploymentHistoryAdapter implements DeploymentHistoryStore
var _ usecase.DeploymentHistoryStore = (*DeploymentHistoryAdapter)(nil)
