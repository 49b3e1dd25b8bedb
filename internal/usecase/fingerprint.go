package usecase

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/moby/patternmatcher"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// skipDirs are never walked when collecting sources
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".artifacts":   true,
}

// skipTopDirs hold build output and vendored dependencies at the project root
var skipTopDirs = map[string]bool{
	"cache":     true,
	"out":       true,
	"artifacts": true,
	"lib":       true,
}

// SourcePatterns returns the files that feed a project fingerprint
func SourcePatterns(layout *config.FoundryConfig) []string {
	src, script := layout.SourceDirs()
	return []string{
		"foundry.toml",
		path.Join(src, "**", "*.sol"),
		path.Join(script, "**", "*.sol"),
		"hardhat.config.*",
		"contracts/**/*.sol",
	}
}

// Fingerprint hashes the project sources together with the invocation
// parameters. Each matched file contributes "relpath:content"; entries are
// sorted by path and joined by newlines so the hash does not depend on walk
// order or absolute location.
func Fingerprint(projectPath string, layout *config.FoundryConfig, params domain.InvocationParams) (string, error) {
	info, err := os.Stat(projectPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidProject, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidProject, projectPath)
	}

	src, script := layout.SourceDirs()
	pm, err := patternmatcher.New(SourcePatterns(layout))
	if err != nil {
		return "", fmt.Errorf("invalid source patterns: %w", err)
	}

	var files []string
	err = filepath.WalkDir(projectPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(projectPath, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if skipDirs[d.Name()] || (skipTopDirs[rel] && rel != src && rel != script) {
				return filepath.SkipDir
			}
			return nil
		}
		ok, err := pm.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk project: %w", err)
	}
	sort.Strings(files)

	parts := make([]string, 0, len(files)+1)
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(projectPath, rel))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rel, err)
		}
		parts = append(parts, filepath.ToSlash(rel)+":"+string(content))
	}
	parts = append(parts, params.Script+":"+params.ForkURL)

	hash := crypto.Keccak256Hash([]byte(strings.Join(parts, "\n")))
	return strings.TrimPrefix(hash.Hex(), "0x"), nil
}
