package capture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
)

// ExecBackend grabs frames by shelling out to the host's screenshot
// utility and reads the cursor position from the host's pointer query
// tool. It is the default backend for the CLI; embedders with direct
// display access supply their own Backend instead.
type ExecBackend struct {
	// ShotCmd produces a PNG at the path given as its final argument.
	// Defaults per platform: screencapture (darwin), scrot (linux).
	ShotCmd []string
	// CursorCmd prints the pointer position. Default: xdotool
	// getmouselocation (linux); darwin has no stock tool, so
	// CursorPosition reports (0,0).
	CursorCmd []string
}

// NewExecBackend returns an ExecBackend with platform defaults.
func NewExecBackend() *ExecBackend {
	b := &ExecBackend{}
	switch runtime.GOOS {
	case "darwin":
		b.ShotCmd = []string{"screencapture", "-x", "-t", "png"}
	default:
		b.ShotCmd = []string{"scrot", "-o"}
		b.CursorCmd = []string{"xdotool", "getmouselocation"}
	}
	return b
}

// GrabFrame captures one screenshot.
func (b *ExecBackend) GrabFrame() (image.Image, error) {
	tmp, err := os.CreateTemp("", "deskagent-frame-*.png")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	args := append(append([]string(nil), b.ShotCmd[1:]...), path)
	if out, err := exec.Command(b.ShotCmd[0], args...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screenshot command: %v: %s", err, bytes.TrimSpace(out))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

var mouseLocationRE = regexp.MustCompile(`x:(\d+)\s+y:(\d+)`)

// CursorPosition reports the pointer position, falling back to (0,0)
// when no pointer query tool is configured.
func (b *ExecBackend) CursorPosition() (int, int, error) {
	if len(b.CursorCmd) == 0 {
		return 0, 0, nil
	}
	out, err := exec.Command(b.CursorCmd[0], b.CursorCmd[1:]...).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("cursor query: %w", err)
	}
	m := mouseLocationRE.FindSubmatch(out)
	if m == nil {
		return 0, 0, fmt.Errorf("cursor query: unparseable output %q", out)
	}
	x, _ := strconv.Atoi(string(m[1]))
	y, _ := strconv.Atoi(string(m[2]))
	return x, y, nil
}
