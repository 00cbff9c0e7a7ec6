// Package input implements the input driver: primitive OS input events
// dispatched against physical pixel coordinates. All primitives block
// until the OS has accepted the event, then pace with the post-action
// pause the contract mandates before returning.
package input

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/deskagent/core/pkg/models"
)

// Post-action pauses absorb the minimum time between injecting an event
// and the GUI beginning to react; they are dispatch pacing, not
// perceptual verification.
const (
	pauseClick = 300 * time.Millisecond
	pauseType  = 50 * time.Millisecond
	pauseKey   = 100 * time.Millisecond
	pauseScroll = 200 * time.Millisecond
	pauseOther  = 100 * time.Millisecond
)

// Commander runs one platform input command to completion. The default
// implementation shells out to a host input-injection utility (e.g.
// xdotool/cliclick/nircmd depending on platform); tests substitute a fake.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ShellCommander invokes an external binary via os/exec, mirroring this
// codebase's own process-dispatch pattern for running host commands.
type ShellCommander struct {
	// Bin is the input-injection binary to invoke (e.g. "xdotool").
	Bin string
}

func (s ShellCommander) Run(ctx context.Context, name string, args ...string) error {
	full := append([]string{name}, args...)
	cmd := exec.CommandContext(ctx, s.Bin, full...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("input command %s %v: %w", name, args, err)
	}
	return nil
}

// Driver exposes the primitive OS input operations the executor dispatches
// into after translating normalized coordinates to pixels.
type Driver struct {
	cmd Commander
}

// New constructs a Driver backed by the given Commander.
func New(cmd Commander) *Driver {
	return &Driver{cmd: cmd}
}

func (d *Driver) ClickAt(ctx context.Context, px, py int) error {
	if err := d.cmd.Run(ctx, "click", strconv.Itoa(px), strconv.Itoa(py)); err != nil {
		return err
	}
	sleep(ctx, pauseClick)
	return nil
}

func (d *Driver) DoubleClickAt(ctx context.Context, px, py int) error {
	if err := d.cmd.Run(ctx, "doubleclick", strconv.Itoa(px), strconv.Itoa(py)); err != nil {
		return err
	}
	sleep(ctx, pauseClick)
	return nil
}

func (d *Driver) RightClickAt(ctx context.Context, px, py int) error {
	if err := d.cmd.Run(ctx, "rightclick", strconv.Itoa(px), strconv.Itoa(py)); err != nil {
		return err
	}
	sleep(ctx, pauseClick)
	return nil
}

func (d *Driver) Type(ctx context.Context, text string) error {
	if err := d.cmd.Run(ctx, "type", text); err != nil {
		return err
	}
	sleep(ctx, pauseType)
	return nil
}

func (d *Driver) PressKeys(ctx context.Context, key models.Key) error {
	if err := d.cmd.Run(ctx, "key", string(key)); err != nil {
		return err
	}
	sleep(ctx, pauseKey)
	return nil
}

func (d *Driver) Scroll(ctx context.Context, amount int) error {
	if err := d.cmd.Run(ctx, "scroll", strconv.Itoa(amount)); err != nil {
		return err
	}
	sleep(ctx, pauseScroll)
	return nil
}

func (d *Driver) Drag(ctx context.Context, fromPX, fromPY, toPX, toPY int) error {
	if err := d.cmd.Run(ctx, "drag",
		strconv.Itoa(fromPX), strconv.Itoa(fromPY),
		strconv.Itoa(toPX), strconv.Itoa(toPY)); err != nil {
		return err
	}
	sleep(ctx, pauseOther)
	return nil
}

func (d *Driver) Wait(ctx context.Context, durationMS int) error {
	sleep(ctx, time.Duration(durationMS)*time.Millisecond)
	return nil
}

// sleep blocks for d unless the context is already done, in which case it
// returns immediately — cancellation is checked between actions by the
// caller, not here.
func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
