package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pyramidview/internal/source"
	"pyramidview/internal/tiles"
)

type panOptions struct {
	imageOptions
	Steps       int
	DX, DY      float64
	MaxSize     int
	Concurrency int
	Settle      time.Duration
}

var panOpts panOptions

var panCmd = &cobra.Command{
	Use:   "pan",
	Short: "Pan a viewport across a synthetic image and report cache behaviour",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPan(cmd.Context(), cmd.OutOrStdout(), panOpts, log)
	},
}

func init() {
	rootCmd.AddCommand(panCmd)
	panCmd.Flags().AddFlagSet(panOpts.flagSet())
	panCmd.Flags().IntVar(&panOpts.Steps, "steps", 10, "Number of viewport moves")
	panCmd.Flags().Float64Var(&panOpts.DX, "dx", 512, "Horizontal move per step in image pixels")
	panCmd.Flags().Float64Var(&panOpts.DY, "dy", 0, "Vertical move per step in image pixels")
	panCmd.Flags().IntVar(&panOpts.MaxSize, "max-size", 0, "Cache bound, 0 sizes it from the viewport")
	panCmd.Flags().IntVar(&panOpts.Concurrency, "concurrency", 8, "Simultaneous tile fetches")
	panCmd.Flags().DurationVar(&panOpts.Settle, "settle", 5*time.Second, "How long to wait for visible tiles after each step")
}

// runPan drives a tile cache over the debug source and prints one line per step.
func runPan(ctx context.Context, w io.Writer, o panOptions, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := o.validate(); err != nil {
		return err
	}
	p := o.pyramid()
	c, err := tiles.New(tiles.Config[*source.Tile]{
		Fetch:       source.Bind(source.NewDebug(o.TileSize), "debug"),
		MaxSize:     o.MaxSize,
		MinZoom:     float64(p.MinZoom),
		MaxZoom:     float64(p.MaxZoom),
		Width:       p.Width,
		Height:      p.Height,
		TileSize:    p.TileSize,
		Concurrency: o.Concurrency,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer c.Finalize()

	ix := c.Indexer()
	fmt.Fprintf(w, "pyramid: %dx%d, zoom %d..%d, tile %dpx\n", ix.Width, ix.Height, ix.MinZoom, ix.MaxZoom, ix.TileSize)

	center := orb.Point{o.CenterX, o.CenterY}
	for step := 1; step <= o.Steps; step++ {
		start := time.Now()
		res := c.Update(o.viewport(center))

		settle, cancel := context.WithTimeout(ctx, o.Settle)
		loaded, errored, bytes := 0, 0, 0
		for _, t := range c.Tiles() {
			if !t.IsVisible() {
				continue
			}
			if err := t.Wait(settle); err != nil {
				if settle.Err() != nil {
					break
				}
				errored++
				continue
			}
			if data, ok := t.Data(); ok {
				loaded++
				bytes += data.Size()
			}
		}
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(w, "step %d: center=(%.0f,%.0f) zoom=%d requested=%d added=%d evicted=%d size=%d loaded=%d errored=%d visible=%s took=%s\n",
			step, center[0], center[1], res.Zoom, res.Requested, res.Added, res.Evicted, res.Size,
			loaded, errored, humanize.Bytes(uint64(bytes)), time.Since(start).Round(time.Millisecond))

		center = orb.Point{center[0] + o.DX, center[1] + o.DY}
	}
	return nil
}
