package cluster

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultPreviewSize = 512
	maxPreviewSize     = 4096
	minPreviewSize     = 64
)

// Preview draws the screen-space layout of one pass: individuals as dots,
// clusters as larger circles labelled with their member count.
type Preview struct {
	Width, Height int
	ShowGrid      bool

	Background      color.RGBA
	IndividualColor color.RGBA
	ClusterColor    color.RGBA
	GridColor       color.RGBA
	LabelColor      color.RGBA

	result   *Result
	viewport Viewport
}

// previewNode is a node positioned on the preview surface
type previewNode struct {
	screen orb.Point
	count  int
}

// NewPreview sizes the surface to the viewport at the result's zoom,
// falling back to a square when the viewport is degenerate.
func NewPreview(result *Result, viewport Viewport) *Preview {
	width, height := defaultPreviewSize, defaultPreviewSize
	if result != nil {
		br := ToScreen(viewport, result.Zoom, viewport.BottomRight)
		if w := int(math.Round(br.X())); w >= minPreviewSize {
			width = min(w, maxPreviewSize)
		}
		if h := int(math.Round(br.Y())); h >= minPreviewSize {
			height = min(h, maxPreviewSize)
		}
	}

	return &Preview{
		Width:           width,
		Height:          height,
		ShowGrid:        true,
		Background:      color.RGBA{255, 255, 255, 255},
		IndividualColor: color.RGBA{33, 150, 243, 255},
		ClusterColor:    color.RGBA{244, 67, 54, 255},
		GridColor:       color.RGBA{230, 230, 230, 255},
		LabelColor:      color.RGBA{255, 255, 255, 255},
		result:          result,
		viewport:        viewport,
	}
}

// nodes returns every node with its screen position at the result zoom
func (p *Preview) nodes() []previewNode {
	if p.result == nil {
		return nil
	}
	out := make([]previewNode, 0, len(p.result.Nodes))
	for _, n := range p.result.Nodes {
		out = append(out, previewNode{
			screen: ToScreen(p.viewport, p.result.Zoom, n.Position()),
			count:  n.Count(),
		})
	}
	return out
}

// cellSize returns the grid spacing used for the overlay
func (p *Preview) cellSize() float64 {
	if p.result != nil && p.result.Grid != nil {
		return p.result.Grid.CellSize
	}
	return DefaultThreshold
}

// clusterRadius grows with the member count so large clusters stand out
func clusterRadius(count int) float64 {
	return 8 + 3*math.Log2(float64(count))
}

// Render rasterizes the preview
func (p *Preview) Render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			img.Set(x, y, p.Background)
		}
	}

	if p.ShowGrid {
		step := p.cellSize()
		for gx := step; gx < float64(p.Width); gx += step {
			for y := 0; y < p.Height; y++ {
				img.Set(int(gx), y, p.GridColor)
			}
		}
		for gy := step; gy < float64(p.Height); gy += step {
			for x := 0; x < p.Width; x++ {
				img.Set(x, int(gy), p.GridColor)
			}
		}
	}

	for _, n := range p.nodes() {
		cx, cy := int(math.Round(n.screen.X())), int(math.Round(n.screen.Y()))
		if n.count == 1 {
			drawCircle(img, cx, cy, 4, p.IndividualColor)
			continue
		}

		drawCircle(img, cx, cy, int(clusterRadius(n.count)), p.ClusterColor)
		label := strconv.Itoa(n.count)
		// basicfont glyphs are 7px wide with a 13px line; baseline sits ~4px below centre
		drawText(img, cx-len(label)*7/2, cy+4, label, p.LabelColor)
	}

	return img
}

// WritePNG encodes the raster preview
func (p *Preview) WritePNG(w io.Writer) error {
	return png.Encode(w, p.Render())
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
