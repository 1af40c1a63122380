package makcu

import (
	"sync/atomic"

	"makcu/protocol"
)

// BatchBuilder accumulates pre-rendered command strings and fires them
// back-to-back, minimising per-command overhead for scripted sequences.
//
// A builder may outlive the Device that created it; every enqueue and the
// execute consult the device's liveness token, so calls after Close become
// no-ops that report false instead of dangling.
type BatchBuilder struct {
	device   *Device
	alive    *atomic.Bool
	commands []string
	invalid  bool
}

// CreateBatch returns an empty builder bound to this device.
func (d *Device) CreateBatch() *BatchBuilder {
	return &BatchBuilder{device: d, alive: &d.alive}
}

func (b *BatchBuilder) add(cmd string, err error) *BatchBuilder {
	if !b.alive.Load() {
		return b
	}
	if err != nil {
		b.invalid = true
		return b
	}
	b.commands = append(b.commands, cmd)
	return b
}

// Move enqueues a relative move.
func (b *BatchBuilder) Move(x, y int) *BatchBuilder {
	cmd, err := protocol.MoveCommand(x, y)
	return b.add(cmd, err)
}

// MoveSmooth enqueues a segmented move.
func (b *BatchBuilder) MoveSmooth(x, y, segments int) *BatchBuilder {
	cmd, err := protocol.SmoothMoveCommand(x, y, segments)
	return b.add(cmd, err)
}

// MoveBezier enqueues a curved move.
func (b *BatchBuilder) MoveBezier(x, y, segments, ctrlX, ctrlY int) *BatchBuilder {
	cmd, err := protocol.BezierMoveCommand(x, y, segments, ctrlX, ctrlY)
	return b.add(cmd, err)
}

// Press enqueues a button press.
func (b *BatchBuilder) Press(button MouseButton) *BatchBuilder {
	cmd, err := protocol.PressCommand(int(button))
	return b.add(cmd, err)
}

// Release enqueues a button release.
func (b *BatchBuilder) Release(button MouseButton) *BatchBuilder {
	cmd, err := protocol.ReleaseCommand(int(button))
	return b.add(cmd, err)
}

// Click enqueues a press followed by a release.
func (b *BatchBuilder) Click(button MouseButton) *BatchBuilder {
	return b.Press(button).Release(button)
}

// Scroll enqueues a wheel movement.
func (b *BatchBuilder) Scroll(delta int) *BatchBuilder {
	cmd, err := protocol.WheelCommand(delta)
	return b.add(cmd, err)
}

// Drag enqueues press, move, release.
func (b *BatchBuilder) Drag(button MouseButton, x, y int) *BatchBuilder {
	return b.Press(button).Move(x, y).Release(button)
}

// DragSmooth enqueues press, segmented move, release.
func (b *BatchBuilder) DragSmooth(button MouseButton, x, y, segments int) *BatchBuilder {
	return b.Press(button).MoveSmooth(x, y, segments).Release(button)
}

// DragBezier enqueues press, curved move, release.
func (b *BatchBuilder) DragBezier(button MouseButton, x, y, segments, ctrlX, ctrlY int) *BatchBuilder {
	return b.Press(button).MoveBezier(x, y, segments, ctrlX, ctrlY).Release(button)
}

// Len returns the number of enqueued commands.
func (b *BatchBuilder) Len() int {
	return len(b.commands)
}

// Execute fires the accumulated commands in order, stopping at the first
// failure. Returns false if any enqueue was invalid, the device is gone, or
// a send fails. A successful execute clears the builder for reuse.
func (b *BatchBuilder) Execute() bool {
	if !b.alive.Load() || b.invalid {
		return false
	}
	for _, cmd := range b.commands {
		if !b.device.send(cmd) {
			return false
		}
	}
	b.commands = b.commands[:0]
	return true
}
