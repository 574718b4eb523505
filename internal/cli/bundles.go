package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/output"
	"github.com/spf13/cobra"
)

var bundlesFrames int

var bundlesCmd = &cobra.Command{
	Use:   "bundles [bundle]",
	Short: "List bundles, or the frames of one bundle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := openSource(GetAssetsFromCmd(cmd), 1, bundlesFrames)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(commandContext(cmd))
		defer cancel()

		if len(args) == 1 {
			return streamFrames(ctx, src, args[0])
		}

		names, err := src.Bundles(ctx)
		if err != nil {
			return err
		}
		var rows [][]string
		for _, name := range names {
			frames, err := src.List(ctx, name)
			if err != nil {
				return err
			}
			rows = append(rows, []string{name, strconv.Itoa(len(frames))})
		}

		out, err := output.FormatRows(GetFormat(), []string{"bundle", "frames"}, rows)
		if err != nil {
			return err
		}

		fmt.Fprint(os.Stdout, string(out))
		return nil
	},
}

// streamFrames writes one row per frame of bundle as each frame is opened,
// so large bundles print while they are still being read.
func streamFrames(ctx context.Context, src asset.Source, bundle string) error {
	frames, err := src.List(ctx, bundle)
	if err != nil {
		return err
	}

	rows := make(chan []string)
	go func() {
		defer close(rows)
		for _, f := range frames {
			info, err := src.Open(ctx, bundle, f)
			if err != nil {
				logger.WithError(err).WithField("path", f).Warn("skipping unreadable frame")
				continue
			}
			row := []string{
				f,
				strconv.Itoa(info.Width),
				strconv.Itoa(info.Height),
				info.Format,
				strconv.FormatInt(info.Bytes, 10),
			}
			select {
			case rows <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	header := []string{"path", "width", "height", "format", "bytes"}
	return output.StreamRows(os.Stdout, GetFormat(), header, rows)
}

func init() {
	bundlesCmd.Flags().IntVar(&bundlesFrames, "frames", 20, "Frames per generated bundle when no asset root is set")
	rootCmd.AddCommand(bundlesCmd)
}
