package main

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"pyramidview/internal/tiles"
)

var (
	indicesOpts      imageOptions
	optWithAncestors bool
)

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "Print the tiles a viewport selects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printIndices(cmd.OutOrStdout(), indicesOpts, optWithAncestors)
	},
}

func init() {
	rootCmd.AddCommand(indicesCmd)
	indicesCmd.Flags().AddFlagSet(indicesOpts.flagSet())
	indicesCmd.Flags().BoolVar(&optWithAncestors, "ancestors", false, "Also print the coarser tiles above the viewport")
}

func printIndices(w io.Writer, o imageOptions, withAncestors bool) error {
	if err := o.validate(); err != nil {
		return err
	}
	ix := o.indexer()
	v := o.viewport(orb.Point{o.CenterX, o.CenterY})
	if v.Degenerate() {
		return fmt.Errorf("viewport %v is degenerate", v.Bounds)
	}

	core := ix.Indices(v)
	fmt.Fprintf(w, "pyramid: zoom %d..%d, viewport zoom %d\n", ix.MinZoom, ix.MaxZoom, ix.Zoom(v))
	printCoords(w, "visible", core)
	if len(core) > 0 && core[0].Z != ix.MinZoom {
		printCoords(w, "ring", ix.Expand(core))
	}
	if withAncestors {
		printCoords(w, "ancestors", ix.Ancestors(core))
	}
	return nil
}

func printCoords(w io.Writer, label string, coords []tiles.Coord) {
	fmt.Fprintf(w, "%s (%d):", label, len(coords))
	for _, c := range coords {
		fmt.Fprintf(w, " %d/%d/%d", c.Z, c.X, c.Y)
	}
	fmt.Fprintln(w)
}
