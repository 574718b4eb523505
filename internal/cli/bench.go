package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/output"
	"github.com/fuabioo/atlascache/internal/scene"
	"github.com/spf13/cobra"
)

var (
	benchCycles      int
	benchSeed        uint64
	benchConcurrency int
	benchFrames      int
	benchSprites     int
	benchLayout      string
	benchXLSX        string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the sprite refresh benchmark",
	Long: `Draw a scene of sprites through the cache, refresh it --cycles times and
report hits, evictions and resident textures per cycle. After the run the
scene is cleared and the cache closed; textures still resident are reported
as leaked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := cacheConfigFromCmd(cmd)
		if err != nil {
			return err
		}

		root := GetAssetsFromCmd(cmd)
		src, err := openSource(root, benchSeed, benchFrames)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		layout, err := benchLayoutFor(ctx, src, root)
		if err != nil {
			return err
		}

		report, err := scene.RunBench(ctx, src, scene.BenchConfig{
			Layout:      layout,
			Capacity:    cc.Capacity,
			Policy:      cc.Policy,
			Overflow:    cc.Overflow,
			Cycles:      benchCycles,
			Seed:        benchSeed,
			Concurrency: benchConcurrency,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		if benchXLSX != "" {
			if err := output.WriteXLSX(benchXLSX, report.Sheets()); err != nil {
				return err
			}
			logger.WithField("path", benchXLSX).Info("wrote benchmark workbook")
		}

		if err := output.Print(report, GetFormat()); err != nil {
			return err
		}
		if len(report.Leaked) > 0 {
			return fmt.Errorf("%d textures leaked", len(report.Leaked))
		}
		return nil
	},
}

// benchLayoutFor picks the layout file, the default layout for generated
// bundles, or one layer per bundle of the asset root.
func benchLayoutFor(ctx context.Context, src asset.Source, root string) (scene.Layout, error) {
	if benchLayout != "" {
		return scene.LoadLayout(ResolveFilePath(root, benchLayout))
	}
	if root == "" {
		layout := scene.DefaultLayout()
		if benchSprites > 0 {
			for i := range layout.Layers {
				layout.Layers[i].Sprites = benchSprites
			}
		}
		return layout, nil
	}
	bundles, err := src.Bundles(ctx)
	if err != nil {
		return scene.Layout{}, err
	}
	return scene.LayoutForBundles(bundles, benchSprites), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	benchCmd.Flags().IntVarP(&benchCycles, "cycles", "n", 10, "Number of refresh cycles")
	benchCmd.Flags().Uint64Var(&benchSeed, "seed", 0, "Random seed for frame picks and generated bundles (0: random)")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", asset.DefaultConcurrency, "Parallel texture loads")
	benchCmd.Flags().IntVar(&benchFrames, "frames", 20, "Frames per generated bundle when no asset root is set")
	benchCmd.Flags().IntVar(&benchSprites, "sprites", 0, "Sprites per layer (default: 30)")
	benchCmd.Flags().StringVar(&benchLayout, "layout", "", "Scene layout YAML file, relative to the asset root if one is set")
	benchCmd.Flags().StringVar(&benchXLSX, "xlsx", "", "Also write the report to this xlsx workbook")
	addCacheFlags(benchCmd)
	rootCmd.AddCommand(benchCmd)
}
