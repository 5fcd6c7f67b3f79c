package fetch

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Extractor resolves the external crawl binary to an absolute path: a
// configured path is used as-is, otherwise the binary name is looked up on
// PATH. Install additionally copies an operator-supplied binary (e.g. a
// downloaded release artifact) into a state directory with an idempotent
// size check and a temp-then-rename write.
type Extractor struct {
	stateDir string
}

// NewExtractor creates an Extractor that installs binaries under stateDir.
func NewExtractor(stateDir string) *Extractor {
	return &Extractor{stateDir: stateDir}
}

// Resolve returns the absolute path to the crawl binary. If configured is
// non-empty it is used as-is (after existence check); otherwise name is
// looked up on PATH.
func (e *Extractor) Resolve(configured, name string) (string, error) {
	if configured != "" {
		abs, err := filepath.Abs(configured)
		if err != nil {
			return "", fmt.Errorf("fetch: resolve %q: %w", configured, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("fetch: configured binary %q: %w", abs, err)
		}
		return abs, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("fetch: %s not found on PATH and no explicit path configured: %w", name, err)
	}
	return path, nil
}

// Install copies src (a freshly downloaded binary, e.g. from a release
// artifact) into the state directory under name, skipping the copy if a
// same-sized file is already present, and otherwise writing to a temp file
// and renaming into place so a killed process never leaves a partially
// written, executable-flagged binary behind.
func (e *Extractor) Install(name string, src io.Reader, size int64) (string, error) {
	destPath := filepath.Join(e.stateDir, binaryName(name))

	if destInfo, err := os.Stat(destPath); err == nil && destInfo.Size() == size {
		return destPath, nil
	}

	if err := os.MkdirAll(e.stateDir, 0o750); err != nil {
		return "", fmt.Errorf("fetch: create state dir %q: %w", e.stateDir, err)
	}

	tmpFile, err := os.CreateTemp(e.stateDir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("fetch: create temp file for %s: %w", name, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, src); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("fetch: write %s: %w", name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("fetch: close temp file for %s: %w", name, err)
	}
	if err := setExecutable(tmpPath); err != nil {
		return "", fmt.Errorf("fetch: set executable on %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("fetch: move %s into place: %w", name, err)
	}

	success = true
	return destPath, nil
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func setExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, fs.FileMode(0o755))
}
