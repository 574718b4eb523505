package cli

import (
	"fmt"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP server (stdio)",
	Long: `Run atlascache as a Model Context Protocol server using stdio transport.
The server holds one cache session for its lifetime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		allowedPaths, err := cmd.Flags().GetStringSlice("allowed-paths")
		if err != nil {
			return fmt.Errorf("failed to get allowed-paths flag: %w", err)
		}

		if len(allowedPaths) > 0 {
			// CLI flag takes precedence over env var
			if err := mcp.InitAllowedPaths(allowedPaths); err != nil {
				return fmt.Errorf("failed to initialize allowed paths: %w", err)
			}
		} else {
			// Fall back to ATLASCACHE_ALLOWED_PATHS environment variable
			if err := mcp.LoadAllowedPathsFromEnv(); err != nil {
				return fmt.Errorf("failed to load allowed paths from environment: %w", err)
			}
		}

		cfg, err := mcpConfigFromCmd(cmd)
		if err != nil {
			return err
		}

		srv := mcp.New(cfg)
		return srv.Run()
	},
}

func mcpConfigFromCmd(cmd *cobra.Command) (mcp.Config, error) {
	cc, err := cacheConfigFromCmd(cmd)
	if err != nil {
		return mcp.Config{}, err
	}
	cfg := mcp.Config{
		Capacity: cc.Capacity,
		Policy:   cc.Policy,
		Overflow: cc.Overflow,
		Logger:   logger,
		Version:  appVersion,
	}

	if root := GetAssetsFromCmd(cmd); root != "" {
		validRoot, err := mcp.ValidateAssetRoot(root)
		if err != nil {
			return mcp.Config{}, err
		}
		src, err := asset.NewDirSource(validRoot)
		if err != nil {
			return mcp.Config{}, err
		}
		cfg.Source = src
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringSlice("allowed-paths", nil,
		"Additional directories to allow asset access (comma-separated, e.g. --allowed-paths /tmp,/data)")
	addCacheFlags(mcpCmd)
}
