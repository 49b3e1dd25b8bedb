package docker

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}
}

func tarFiles(t *testing.T, r io.Reader) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, filepath.ToSlash(hdr.Name))
		}
	}
}

func TestProjectArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir,
		"foundry.toml",
		"src/Counter.sol",
		"node_modules/a.js",
		"cache/solidity-files-cache.json",
		".artifacts/Counter.json",
		"lib/forge-std/node_modules/b.js",
		"lib/forge-std/src/Test.sol",
		"packages/x/cache/c.json",
		"packages/x/.artifacts/d.json",
	)

	rc, err := NewProjectArchiver().Archive(dir, []string{"**/node_modules", "**/cache", "**/.artifacts"})
	require.NoError(t, err)
	defer rc.Close()

	assert.ElementsMatch(t, []string{
		"foundry.toml",
		"src/Counter.sol",
		"lib/forge-std/src/Test.sol",
	}, tarFiles(t, rc))
}

func TestProjectArchiver_MissingProject(t *testing.T) {
	_, err := NewProjectArchiver().Archive(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
