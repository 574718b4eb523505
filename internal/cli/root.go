package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	formatFlag    string
	logLevelFlag  string
	logFormatFlag string
	assetsFlag    string

	// logger is configured from the persistent flags before every command.
	logger = logrus.New()
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "atlascache",
	Short: "atlascache - reference-counted texture cache",
	Long: `atlascache is a ref-count-aware LRU texture cache with a sprite benchmark,
a bundle inspector and an MCP server exposing a live cache session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(os.Stderr, logLevelFlag, logFormatFlag)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, date string) error {

	// Build version string with commit and date
	versionStr := version
	if versionStr == "" {
		versionStr = "dev"
	}
	if commit != "" {
		versionStr += fmt.Sprintf(" (commit: %s)", commit)
	}
	if date != "" {
		versionStr += fmt.Sprintf(" built: %s", date)
	}
	appVersion = versionStr

	return fang.Execute(ctx, rootCmd,
		fang.WithVersion(versionStr),
	)
}

// appVersion is reported by the MCP server.
var appVersion = "dev"

func init() {
	rootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format (json, csv, tsv)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&assetsFlag, "assets", "a", "",
		"Asset root whose subdirectories are bundles (env "+AssetsEnv+"; default: generated bundles)")
}

// GetFormat returns the current format flag value
func GetFormat() string {
	return formatFlag
}
