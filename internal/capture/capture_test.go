package capture

import (
	"image"
	"image/color"
	"testing"
)

type fakeBackend struct {
	img  image.Image
	cx   int
	cy   int
}

func (f *fakeBackend) GrabFrame() (image.Image, error) { return f.img, nil }
func (f *fakeBackend) CursorPosition() (int, int, error) { return f.cx, f.cy, nil }

func newFakeImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	return img
}

func TestCapture_ProducesMetaAndImage(t *testing.T) {
	backend := &fakeBackend{img: newFakeImage(1920, 1080), cx: 960, cy: 540}
	c := New(backend)
	frame, err := c.Capture()
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if frame.JPEGBase64 == "" {
		t.Fatal("expected non-empty JPEG payload")
	}
	if frame.Meta.Width != 1920 || frame.Meta.Height != 1080 {
		t.Fatalf("unexpected meta: %+v", frame.Meta)
	}
}

func TestCoordRoundTrip_IdempotentUpToRounding(t *testing.T) {
	meta := Meta{Width: 1920, Height: 1080}
	for _, nc := range []struct{ x, y int }{{0, 0}, {500, 500}, {1000, 1000}, {250, 750}} {
		px, py := meta.ToPixel(nc.x, nc.y)
		nx, ny := meta.ToNormalized(px, py)
		px2, py2 := meta.ToPixel(nx, ny)
		if abs(px2-px) > 1 || abs(py2-py) > 1 {
			t.Fatalf("round trip drift too large for (%d,%d): got px=%d py=%d after=%d,%d", nc.x, nc.y, px, py, px2, py2)
		}
	}
}

func TestRecordClick_UpdatesLastClick(t *testing.T) {
	backend := &fakeBackend{img: newFakeImage(100, 100), cx: 10, cy: 10}
	c := New(backend)
	meta := Meta{Width: 100, Height: 100}
	c.RecordClick(meta, 50, 50)
	if c.lastClickPixel == nil || c.lastClickPixel.X != 50 || c.lastClickPixel.Y != 50 {
		t.Fatalf("expected last click recorded at (50,50), got %+v", c.lastClickPixel)
	}
	// next capture should not error with a recorded click present.
	if _, err := c.Capture(); err != nil {
		t.Fatalf("capture with ring overlay failed: %v", err)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
