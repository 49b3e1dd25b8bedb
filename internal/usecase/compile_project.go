package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// ArtifactsDir is where build output lands inside a project
const ArtifactsDir = ".artifacts"

// CompileProject builds a project inside its toolchain sandbox and copies the
// build output back next to the sources
type CompileProject struct {
	cfg      *config.RuntimeConfig
	pool     *SandboxPool
	images   *ImageResolver
	cache    *ContentCache
	layout   ProjectLayoutLoader
	progress ProgressSink
	log      *slog.Logger
}

// NewCompileProject creates a new compile use case
func NewCompileProject(
	cfg *config.RuntimeConfig,
	pool *SandboxPool,
	images *ImageResolver,
	cache *ContentCache,
	layout ProjectLayoutLoader,
	progress ProgressSink,
	log *slog.Logger,
) *CompileProject {
	return &CompileProject{
		cfg:      cfg,
		pool:     pool,
		images:   images,
		cache:    cache,
		layout:   layout,
		progress: progress,
		log:      log.With("component", "compile"),
	}
}

// Run compiles the project. Results are served from the content cache while
// the sources and the artifacts directory are unchanged.
func (uc *CompileProject) Run(ctx context.Context, req domain.CompileRequest) (*domain.CompileResult, error) {
	projectPath, err := resolveProject(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	toolchain := req.Toolchain
	if toolchain == "" {
		if toolchain, err = DetectToolchain(projectPath); err != nil {
			return nil, err
		}
	}
	img, ok := uc.cfg.Images[toolchain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownToolchain, toolchain)
	}
	artifacts := filepath.Join(projectPath, ArtifactsDir)

	key, err := uc.cache.Key(projectPath, domain.InvocationParams{Script: "build:" + string(toolchain)})
	if err != nil {
		uc.log.Warn("fingerprint failed, compiling without cache", "error", err)
		key = ""
	}
	if key != "" {
		if payload, hit := uc.cache.Get(ctx, key); hit && dirExists(artifacts) {
			var cached domain.CompileResult
			if err := json.Unmarshal(payload, &cached); err == nil {
				uc.progress.Info("✅ Using cached build")
				cached.Cached = true
				return &cached, nil
			}
		}
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "image", Message: fmt.Sprintf("Resolving %s image", toolchain), Spinner: true})
	imageCached, imageID, err := uc.images.Resolve(ctx, img.Recipe, img.Tag)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "compile", Message: fmt.Sprintf("Compiling with %s", toolchain), Spinner: true})
	exec, err := uc.pool.Execute(ctx, domain.ExecRequest{
		Toolchain:   toolchain,
		Command:     buildCommand(toolchain, projectPath),
		ProjectPath: projectPath,
		Timeout:     req.Timeout,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.CompileResult{
		Success:     exec.Success,
		CacheKey:    key,
		ImageCached: imageCached,
		ImageID:     imageID,
		Exec:        exec,
	}
	if !exec.Success {
		return result, nil
	}

	outDir, err := uc.outputDir(projectPath, toolchain)
	if err != nil {
		return nil, err
	}
	if err := uc.pool.FetchArtifacts(ctx, toolchain, projectPath, outDir, artifacts); err != nil {
		return nil, err
	}
	result.ArtifactsDir = artifacts

	if key != "" {
		if err := uc.cache.Put(ctx, key, result, map[domain.Toolchain]string{toolchain: imageID}); err != nil {
			uc.log.Warn("failed to cache build result", "error", err)
		}
	}
	return result, nil
}

func (uc *CompileProject) outputDir(projectPath string, t domain.Toolchain) (string, error) {
	if t == domain.ToolchainHardhat {
		return "artifacts", nil
	}
	layout, err := uc.layout.Load(projectPath)
	if err != nil {
		return "", fmt.Errorf("failed to load project layout: %w", err)
	}
	if p, ok := layout.Profile["default"]; ok && p.OutPath != "" {
		return p.OutPath, nil
	}
	return "out", nil
}

// buildCommand returns the shell command that compiles a project
func buildCommand(t domain.Toolchain, projectPath string) string {
	if t == domain.ToolchainHardhat {
		install := "npm install"
		if fileExists(filepath.Join(projectPath, "package-lock.json")) {
			install = "npm ci"
		}
		return install + " && npx hardhat compile"
	}
	return "git config --global --add safe.directory '*' && forge install && forge build"
}

// DetectToolchain picks the toolchain from the project's config files
func DetectToolchain(projectPath string) (domain.Toolchain, error) {
	if fileExists(filepath.Join(projectPath, "foundry.toml")) {
		return domain.ToolchainFoundry, nil
	}
	if matches, _ := filepath.Glob(filepath.Join(projectPath, "hardhat.config.*")); len(matches) > 0 {
		return domain.ToolchainHardhat, nil
	}
	return "", fmt.Errorf("%w: no foundry.toml or hardhat config in %s", domain.ErrUnknownToolchain, projectPath)
}

// resolveProject validates a project path and makes it absolute
func resolveProject(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrInvalidProject)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidProject, err)
	}
	if !dirExists(abs) {
		return "", fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidProject, p)
	}
	return abs, nil
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
