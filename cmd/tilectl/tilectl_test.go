package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestPrintIndices(t *testing.T) {
	var buf bytes.Buffer
	o := imageOptions{
		Width: 2000, Height: 1500, TileSize: 256,
		Zoom: 0, CenterX: 1000, CenterY: 750, ViewWidth: 2000, ViewHeight: 1500,
	}
	if err := printIndices(&buf, o, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "pyramid: zoom -3..0, viewport zoom 0") {
		t.Errorf("missing pyramid line in %q", out)
	}
	if !strings.Contains(out, "visible (48):") {
		t.Errorf("expected 48 visible tiles in %q", out)
	}
	if !strings.Contains(out, "ancestors (") {
		t.Errorf("expected ancestors in %q", out)
	}
}

func TestPrintIndices_Invalid(t *testing.T) {
	var buf bytes.Buffer
	if err := printIndices(&buf, imageOptions{Width: 0, Height: 10, TileSize: 256}, false); err == nil {
		t.Fatal("expected error for empty image")
	}
	o := imageOptions{Width: 10, Height: 10, TileSize: 256, ViewWidth: 0, ViewHeight: 100}
	if err := printIndices(&buf, o, false); err == nil {
		t.Fatal("expected error for degenerate viewport")
	}
}

func TestRunPan(t *testing.T) {
	var buf bytes.Buffer
	o := panOptions{
		imageOptions: imageOptions{
			Width: 8192, Height: 8192, TileSize: 256,
			Zoom: 0, CenterX: 512, CenterY: 512, ViewWidth: 512, ViewHeight: 512,
		},
		Steps:       3,
		DX:          256,
		MaxSize:     40,
		Concurrency: 4,
		Settle:      10 * time.Second,
	}
	if err := runPan(context.Background(), &buf, o, zaptest.NewLogger(t)); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || lines[0] != "pyramid: 8192x8192, zoom -5..0, tile 256px" {
		t.Fatalf("expected a header and 3 steps, got %q", buf.String())
	}
	lines = lines[1:]
	for i, line := range lines {
		if !strings.HasPrefix(line, "step ") || !strings.Contains(line, "errored=0") {
			t.Errorf("step %d: unexpected line %q", i+1, line)
		}
	}
	if !strings.Contains(lines[0], "center=(512,512)") || !strings.Contains(lines[2], "center=(1024,512)") {
		t.Errorf("unexpected centers in %q", buf.String())
	}
}
