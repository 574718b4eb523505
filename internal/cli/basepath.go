package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/cache"
	"github.com/spf13/cobra"
)

// Environment fallbacks for flags.
const (
	AssetsEnv   = "ATLASCACHE_ASSETS"
	CapacityEnv = "ATLASCACHE_CAPACITY"
	PolicyEnv   = "ATLASCACHE_POLICY"
	OverflowEnv = "ATLASCACHE_OVERFLOW"
)

// ResolveFilePath resolves a file path relative to a basepath.
// If basepath is empty or file is absolute, file is returned unchanged.
// Otherwise, filepath.Join(basepath, file) is returned.
func ResolveFilePath(basepath, file string) string {
	if basepath == "" {
		return file
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(basepath, file)
}

// GetAssetsFromCmd returns the asset root from the command flag,
// falling back to the ATLASCACHE_ASSETS environment variable.
func GetAssetsFromCmd(cmd *cobra.Command) string {
	root, err := cmd.Flags().GetString("assets")
	if err != nil {
		// Flag not registered or other error, fall back to env
		root = ""
	}
	if root == "" {
		root = os.Getenv(AssetsEnv)
	}
	return root
}

// openSource opens the asset root as a DirSource, or generates bundles when
// no root is configured.
func openSource(root string, seed uint64, frames int) (asset.Source, error) {
	if root == "" {
		return asset.NewSyntheticSource(seed, nil, frames), nil
	}
	src, err := asset.NewDirSource(root)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// cacheConfig is the cache setup shared by bench and mcp.
type cacheConfig struct {
	Capacity int
	Policy   cache.Policy
	Overflow cache.Overflow
}

func addCacheFlags(cmd *cobra.Command) {
	cmd.Flags().Int("capacity", 100, "Cache capacity in textures (env "+CapacityEnv+")")
	cmd.Flags().String("policy", "scan", "Eviction policy: scan or strict (env "+PolicyEnv+")")
	cmd.Flags().String("overflow", "reject", "When every texture is pinned: reject or grow (env "+OverflowEnv+")")
}

// flagOrEnv returns the flag value when it was set on the command line,
// then the environment variable, then the flag default.
func flagOrEnv(cmd *cobra.Command, name, env string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", err
	}
	if cmd.Flags().Changed(name) {
		return v, nil
	}
	if e := os.Getenv(env); e != "" {
		return e, nil
	}
	return v, nil
}

func cacheConfigFromCmd(cmd *cobra.Command) (cacheConfig, error) {
	var cfg cacheConfig

	capacity, err := cmd.Flags().GetInt("capacity")
	if err != nil {
		return cfg, err
	}
	if e := os.Getenv(CapacityEnv); e != "" && !cmd.Flags().Changed("capacity") {
		capacity, err = strconv.Atoi(e)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", CapacityEnv, err)
		}
	}
	if capacity < 1 {
		return cfg, fmt.Errorf("invalid capacity: %d (must be >= 1)", capacity)
	}
	cfg.Capacity = capacity

	p, err := flagOrEnv(cmd, "policy", PolicyEnv)
	if err != nil {
		return cfg, err
	}
	if cfg.Policy, err = cache.ParsePolicy(p); err != nil {
		return cfg, err
	}

	o, err := flagOrEnv(cmd, "overflow", OverflowEnv)
	if err != nil {
		return cfg, err
	}
	if cfg.Overflow, err = cache.ParseOverflow(o); err != nil {
		return cfg, err
	}
	return cfg, nil
}
