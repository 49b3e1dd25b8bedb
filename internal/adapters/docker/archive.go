package docker

import (
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/pkg/archive"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// ProjectArchiver tars project trees for upload into sandboxes
type ProjectArchiver struct{}

// NewProjectArchiver creates a new ProjectArchiver
func NewProjectArchiver() *ProjectArchiver {
	return &ProjectArchiver{}
}

// Archive streams projectPath as a tar, skipping paths matching exclude.
// Patterns follow .dockerignore syntax.
func (a *ProjectArchiver) Archive(projectPath string, exclude []string) (io.ReadCloser, error) {
	if _, err := os.Stat(projectPath); err != nil {
		return nil, fmt.Errorf("failed to stat project: %w", err)
	}
	return archive.TarWithOptions(projectPath, &archive.TarOptions{
		ExcludePatterns: exclude,
		Compression:     archive.Uncompressed,
	})
}

func removeAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	return nil
}

var _ usecase.ProjectArchiver = (*ProjectArchiver)(nil)
