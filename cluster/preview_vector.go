package cluster

import (
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// WriteSVG writes the preview as an SVG. One canvas unit is one screen pixel.
func (p *Preview) WriteSVG(w io.Writer) error {
	width, height := float64(p.Width), float64(p.Height)

	svgRenderer := svg.New(w, width, height, nil)
	p.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// WriteVectorPNG rasterizes the vector preview at one pixel per canvas unit
func (p *Preview) WriteVectorPNG(w io.Writer) error {
	width, height := float64(p.Width), float64(p.Height)

	rast := rasterizer.New(width, height, canvas.DPMM(1.0), canvas.DefaultColorSpace)
	p.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws the preview (shared logic for SVG and PNG). Canvas
// y grows upwards, so screen y is flipped.
func (p *Preview) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: p.Background}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if p.ShowGrid {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: p.GridColor}
		gridStyle.StrokeWidth = 0.5

		step := p.cellSize()
		gridPath := &canvas.Path{}
		for x := step; x < width; x += step {
			gridPath.MoveTo(x, 0)
			gridPath.LineTo(x, height)
		}
		for y := step; y < height; y += step {
			gridPath.MoveTo(0, height-y)
			gridPath.LineTo(width, height-y)
		}
		renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
	}

	individualStyle := canvas.DefaultStyle
	individualStyle.Fill = canvas.Paint{Color: p.IndividualColor}
	individualStyle.Stroke = canvas.Paint{Color: canvas.White}
	individualStyle.StrokeWidth = 1.0

	clusterStyle := canvas.DefaultStyle
	clusterStyle.Fill = canvas.Paint{Color: p.ClusterColor}
	clusterStyle.Stroke = canvas.Paint{Color: canvas.White}
	clusterStyle.StrokeWidth = 2.0

	for _, n := range p.nodes() {
		cx, cy := n.screen.X(), height-n.screen.Y()
		if n.count == 1 {
			renderer.RenderPath(canvas.Circle(4).Translate(cx, cy), individualStyle, canvas.Identity)
			continue
		}
		renderer.RenderPath(canvas.Circle(clusterRadius(n.count)).Translate(cx, cy), clusterStyle, canvas.Identity)
	}
}
