// Package backend holds helpers shared by the backend adapters.
package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "VOICE_CACHE_DIR"
)

const (
	appName       = "voice-service"
	cacheDirName  = "cache"
	modelsDirName = "models"
	dotCache      = ".cache"
)

const (
	errFmtAbsolutePath   = "could not resolve absolute path for %q: %w"
	errFmtCheckModelPath = "error checking model path %q: %w"
)

// ErrModelNotFound is returned when a model file cannot be located.
var ErrModelNotFound = errors.New("model not found")

// CacheDir returns the service cache directory. VOICE_CACHE_DIR overrides the
// per-user default.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, cacheDirName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// ResolveModelPath finds a model file, trying in order: the name as given,
// ./models/<name> and <cache>/models/<name>.
func ResolveModelPath(modelName string) (string, error) {
	candidates := []string{
		modelName,
		filepath.Join(modelsDirName, modelName),
		filepath.Join(CacheDir(), modelsDirName, modelName),
	}

	for _, path := range candidates {
		resolved, found, err := resolveSinglePath(path)
		if err != nil {
			return "", err
		}

		if found {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrModelNotFound, modelName)
}

// resolveSinglePath reports found=false without error when the path does not exist.
func resolveSinglePath(path string) (string, bool, error) {
	_, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return "", false, nil
		}

		return "", false, fmt.Errorf(errFmtCheckModelPath, path, statErr)
	}

	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		return "", false, fmt.Errorf(errFmtAbsolutePath, path, absErr)
	}

	return absPath, true, nil
}
