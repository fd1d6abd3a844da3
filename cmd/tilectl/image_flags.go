package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/spf13/pflag"

	"pyramidview/internal/catalog"
	"pyramidview/internal/tiles"
)

// imageOptions describe the image and the screen shared by every subcommand.
type imageOptions struct {
	Width, Height int
	TileSize      int
	Zoom          float64
	CenterX       float64
	CenterY       float64
	ViewWidth     int
	ViewHeight    int
}

func (o *imageOptions) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("image", pflag.ExitOnError)
	fs.IntVar(&o.Width, "width", 100_000, "Image width in pixels")
	fs.IntVar(&o.Height, "height", 100_000, "Image height in pixels")
	fs.IntVar(&o.TileSize, "tile-size", tiles.DefaultTileSize, "Tile edge in pixels")
	fs.Float64Var(&o.Zoom, "zoom", 0, "Viewport zoom, 0 is full resolution")
	fs.Float64Var(&o.CenterX, "center-x", 0, "Viewport centre x in image pixels")
	fs.Float64Var(&o.CenterY, "center-y", 0, "Viewport centre y in image pixels")
	fs.IntVar(&o.ViewWidth, "view-width", 1280, "Screen width in pixels")
	fs.IntVar(&o.ViewHeight, "view-height", 800, "Screen height in pixels")
	return fs
}

func (o imageOptions) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("image extent %dx%d must be positive", o.Width, o.Height)
	}
	if o.TileSize <= 0 {
		return fmt.Errorf("tile size %d must be positive", o.TileSize)
	}
	return nil
}

func (o imageOptions) pyramid() catalog.Pyramid {
	return catalog.NewPyramid(o.Width, o.Height, o.TileSize)
}

func (o imageOptions) indexer() tiles.Indexer {
	p := o.pyramid()
	return tiles.Indexer{TileSize: p.TileSize, MinZoom: p.MinZoom, MaxZoom: p.MaxZoom, Width: p.Width, Height: p.Height}
}

func (o imageOptions) viewport(center orb.Point) tiles.Viewport {
	return tiles.NewViewport(center, o.ViewWidth, o.ViewHeight, o.Zoom)
}
