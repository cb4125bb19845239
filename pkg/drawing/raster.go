package drawing

import (
	"image"
	"image/draw"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/tphan267/roomlink/pkg/models"
)

// Surface is where strokes are rendered
type Surface interface {
	Clear()
	DrawSegment(s models.Stroke)
}

// Raster is an in-memory Surface with round line caps, like a browser canvas
type Raster struct {
	mu sync.Mutex
	dc *gg.Context
}

// NewRaster creates a transparent raster of the given size
func NewRaster(width, height int) *Raster {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	return &Raster{dc: gg.NewContext(width, height)}
}

// Clear resets every pixel to transparent
func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dc.SetRGBA(0, 0, 0, 0)
	r.dc.Clear()
}

// DrawSegment strokes one line segment
func (r *Raster) DrawSegment(s models.Stroke) {
	size := s.Size
	if size <= 0 {
		size = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dc.SetHexColor(s.Color)
	r.dc.SetLineWidth(size)
	r.dc.SetLineCapRound()
	r.dc.DrawLine(s.From.X, s.From.Y, s.To.X, s.To.Y)
	r.dc.Stroke()
}

// Snapshot returns a copy of the current pixels
func (r *Raster) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.dc.Image()
	out := image.NewRGBA(src.Bounds())
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
	return out
}

// EncodePNG writes the current pixels as PNG
func (r *Raster) EncodePNG(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dc.EncodePNG(w)
}

// Size returns the raster dimensions
func (r *Raster) Size() (int, int) {
	return r.dc.Width(), r.dc.Height()
}
