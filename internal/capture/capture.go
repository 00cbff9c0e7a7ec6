// Package capture implements the screen capturer: it grabs a frame from
// the host display, overlays cursor/click feedback, and exposes the
// normalized<->pixel coordinate mapping the rest of the core relies on.
//
// Frame acquisition itself is platform-specific and is abstracted behind
// the Backend interface so the overlay/encode/normalize logic — the part
// this package actually owns — stays testable without a real display.
package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/deskagent/core/internal/coreerrors"
)

// Backend grabs one raw frame from the host display. Implementations are
// platform-specific (X11/Wayland/Quartz/Win32) and live outside this
// package's normative surface; the core only depends on this interface.
type Backend interface {
	GrabFrame() (image.Image, error)
	CursorPosition() (x, y int, err error)
}

// Meta carries the physical frame size and the conversion functions
// between the model's normalized [0,1000] coordinate space and physical
// pixels.
type Meta struct {
	Width  int
	Height int
}

// ToPixel maps a normalized coordinate to a physical pixel, clamped to
// the frame bounds.
func (m Meta) ToPixel(nx, ny int) (px, py int) {
	px = nx * m.Width / 1000
	py = ny * m.Height / 1000
	if px < 0 {
		px = 0
	}
	if px >= m.Width {
		px = m.Width - 1
	}
	if py < 0 {
		py = 0
	}
	if py >= m.Height {
		py = m.Height - 1
	}
	return px, py
}

// ToNormalized maps a physical pixel back to the [0,1000] space. Used by
// tests to check the round-trip idempotency law.
func (m Meta) ToNormalized(px, py int) (nx, ny int) {
	if m.Width == 0 || m.Height == 0 {
		return 0, 0
	}
	nx = px * 1000 / m.Width
	ny = py * 1000 / m.Height
	return nx, ny
}

// Frame is one captured, encoded observation.
type Frame struct {
	JPEGBase64 string
	Meta       Meta
}

// Capturer grabs frames, overlays feedback markers, and keeps the
// last-click-position memo that lets the next frame draw the green ring.
type Capturer struct {
	backend Backend

	mu               sync.Mutex
	lastClickPixel   *image.Point
	lastClickNormal  *image.Point
	maxJPEGQuality   int
	maxEncodedSide   int
}

// New constructs a Capturer backed by the given platform Backend.
func New(backend Backend) *Capturer {
	return &Capturer{
		backend:        backend,
		maxJPEGQuality: 80,
		maxEncodedSide: 1600,
	}
}

// SetEncoding overrides the JPEG quality and the maximum encoded side
// length used before frames are handed to the model.
func (c *Capturer) SetEncoding(quality, maxSide int) {
	if quality > 0 {
		c.maxJPEGQuality = quality
	}
	if maxSide > 0 {
		c.maxEncodedSide = maxSide
	}
}

// Capture grabs a frame, draws the cursor cross and last-click ring, and
// returns the base64-JPEG plus coordinate metadata.
func (c *Capturer) Capture() (*Frame, error) {
	img, err := c.backend.GrabFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrTransientPerception, err)
	}

	bounds := img.Bounds()
	meta := Meta{Width: bounds.Dx(), Height: bounds.Dy()}

	cx, cy, err := c.backend.CursorPosition()
	if err != nil {
		return nil, fmt.Errorf("%w: cursor position: %v", coreerrors.ErrTransientPerception, err)
	}

	rgba := toRGBA(img)
	red := color.RGBA{R: 255, A: 255}
	drawCross(rgba, cx, cy, red)
	nx, ny := meta.ToNormalized(cx, cy)
	drawLabel(rgba, cx+12, cy-6, red, fmt.Sprintf("cursor (%d,%d)", nx, ny))

	c.mu.Lock()
	lastClick := c.lastClickPixel
	lastNormal := c.lastClickNormal
	c.mu.Unlock()
	if lastClick != nil {
		green := color.RGBA{G: 200, A: 255}
		drawRing(rgba, lastClick.X, lastClick.Y, green)
		label := "last click"
		if lastNormal != nil {
			label = fmt.Sprintf("last click (%d,%d)", lastNormal.X, lastNormal.Y)
		}
		drawLabel(rgba, lastClick.X+14, lastClick.Y+4, green, label)
	}

	encoded := image.Image(rgba)
	if meta.Width > c.maxEncodedSide || meta.Height > c.maxEncodedSide {
		encoded = downscale(rgba, c.maxEncodedSide)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, encoded, &jpeg.Options{Quality: c.maxJPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", coreerrors.ErrTransientPerception, err)
	}

	return &Frame{
		JPEGBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Meta:       meta,
	}, nil
}

// ToLogicalSafe clamps a normalized coordinate to the screen bounds and
// performs the normalized->pixel mapping.
func (c *Capturer) ToLogicalSafe(meta Meta, nx, ny int) (px, py int) {
	return meta.ToPixel(nx, ny)
}

// RecordClick records the pixel position of the most recent click so the
// next captured frame can render the green ring there.
func (c *Capturer) RecordClick(meta Meta, px, py int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := image.Pt(px, py)
	c.lastClickPixel = &p
	nx, ny := meta.ToNormalized(px, py)
	n := image.Pt(nx, ny)
	c.lastClickNormal = &n
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

func downscale(img *image.RGBA, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := float64(maxSide) / float64(max(w, h))
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// drawCross renders a small red cross at (x,y), the model's only feedback
// channel for where the cursor currently sits.
func drawCross(img *image.RGBA, x, y int, c color.RGBA) {
	const arm = 8
	b := img.Bounds()
	for dx := -arm; dx <= arm; dx++ {
		setSafe(img, b, x+dx, y, c)
	}
	for dy := -arm; dy <= arm; dy++ {
		setSafe(img, b, x, y+dy, c)
	}
}

// drawRing renders a small green ring at (x,y), marking the previous
// click position.
func drawRing(img *image.RGBA, x, y int, c color.RGBA) {
	const radius = 10
	b := img.Bounds()
	for angle := 0.0; angle < 360.0; angle += 5.0 {
		rad := angle * math.Pi / 180
		dx := int(radius * math.Cos(rad))
		dy := int(radius * math.Sin(rad))
		setSafe(img, b, x+dx, y+dy, c)
	}
}

// drawLabel renders a short annotation next to an overlay marker.
func drawLabel(img *image.RGBA, x, y int, c color.RGBA, text string) {
	b := img.Bounds()
	if x < b.Min.X || y < b.Min.Y || x >= b.Max.X || y >= b.Max.Y {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func setSafe(img *image.RGBA, b image.Rectangle, x, y int, c color.RGBA) {
	if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
		return
	}
	img.SetRGBA(x, y, c)
}
