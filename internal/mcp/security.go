package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowedPathsEnv names the environment variable holding extra allowed
// directories, comma-separated.
const AllowedPathsEnv = "ATLASCACHE_ALLOWED_PATHS"

// AllowedBasePaths contains directories from which assets can be read.
// If empty, defaults to current working directory.
var AllowedBasePaths []string

// InitAllowedPaths replaces AllowedBasePaths with paths. Each path must be
// an existing directory.
func InitAllowedPaths(paths []string) error {
	var out []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid allowed path %s: %w", p, err)
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("invalid allowed path %s: %w", p, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("allowed path %s is not a directory", p)
		}
		out = append(out, abs)
	}
	AllowedBasePaths = out
	return nil
}

// LoadAllowedPathsFromEnv initializes AllowedBasePaths from AllowedPathsEnv.
// An unset or empty variable leaves the working directory as the only base.
func LoadAllowedPathsFromEnv() error {
	v := os.Getenv(AllowedPathsEnv)
	if v == "" {
		return nil
	}
	return InitAllowedPaths(strings.Split(v, ","))
}

// ValidateFilePath ensures the path is safe to access.
func ValidateFilePath(requestedPath string) (string, error) {
	if requestedPath == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}

	// Get absolute path
	absPath, err := filepath.Abs(requestedPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	// Resolve symlinks to prevent bypass
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", requestedPath)
		}
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}

	basePaths := AllowedBasePaths
	if len(basePaths) == 0 {
		basePaths = []string{cwd}
	}

	for _, base := range basePaths {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		realBase, err := filepath.EvalSymlinks(absBase)
		if err != nil {
			continue
		}
		if strings.HasPrefix(realPath, realBase+string(os.PathSeparator)) || realPath == realBase {
			return realPath, nil
		}
	}

	return "", fmt.Errorf("access denied: path outside allowed directories")
}

// ValidateAssetRoot validates root like ValidateFilePath and requires it to
// be a directory.
func ValidateAssetRoot(root string) (string, error) {
	realPath, err := ValidateFilePath(root)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(realPath)
	if err != nil {
		return "", fmt.Errorf("cannot stat asset root: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("asset root is not a directory: %s", root)
	}
	return realPath, nil
}
