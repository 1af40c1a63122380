// Package makcu is a host-side driver for the MAKCU USB-serial mouse
// controller. It speaks the device's line-oriented km.* text protocol over a
// CDC-ACM link upgraded to 4,000,000 baud at connect time, tracks physical
// button state from the out-of-band event stream, and exposes a typed facade
// for movement, clicking, locking and serial spoofing.
package makcu

import (
	"strings"

	"makcu/serial"
)

// MouseButton identifies one of the five physical buttons. The ordinal is
// the bit index in the button mask and the index into the command tables.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
	MouseButtonSide1
	MouseButtonSide2

	// MouseButtonUnknown is the parse fallback; it never appears in masks.
	MouseButtonUnknown
)

// String returns the canonical upper-case button name.
func (b MouseButton) String() string {
	switch b {
	case MouseButtonLeft:
		return "LEFT"
	case MouseButtonRight:
		return "RIGHT"
	case MouseButtonMiddle:
		return "MIDDLE"
	case MouseButtonSide1:
		return "SIDE1"
	case MouseButtonSide2:
		return "SIDE2"
	}
	return "UNKNOWN"
}

// ParseMouseButton is the case-insensitive inverse of String. Unrecognised
// names map to MouseButtonUnknown.
func ParseMouseButton(name string) MouseButton {
	switch strings.ToUpper(name) {
	case "LEFT":
		return MouseButtonLeft
	case "RIGHT":
		return MouseButtonRight
	case "MIDDLE":
		return MouseButtonMiddle
	case "SIDE1":
		return MouseButtonSide1
	case "SIDE2":
		return MouseButtonSide2
	}
	return MouseButtonUnknown
}

// LockTarget identifies an axis or button that can be masked from the
// physical mouse while still permitting software injection. The ordinal
// indexes the lock-state bitmask.
type LockTarget int

const (
	LockX LockTarget = iota
	LockY
	LockLeft
	LockRight
	LockMiddle
	LockSide1
	LockSide2
)

// String returns the lock target name.
func (t LockTarget) String() string {
	switch t {
	case LockX:
		return "X"
	case LockY:
		return "Y"
	case LockLeft:
		return "LEFT"
	case LockRight:
		return "RIGHT"
	case LockMiddle:
		return "MIDDLE"
	case LockSide1:
		return "SIDE1"
	case LockSide2:
		return "SIDE2"
	}
	return "UNKNOWN"
}

// ConnectionStatus is the facade's lifecycle state.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the status name.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// DeviceInfo describes an enumerated MAKCU candidate port. IsConnected is a
// snapshot at call time.
type DeviceInfo = serial.DeviceInfo

// Point is one waypoint of a movement pattern.
type Point struct {
	X, Y int
}

// MouseButtonCallback receives one call per physical button edge.
type MouseButtonCallback func(button MouseButton, pressed bool)

// ConnectionCallback receives one call per connection edge.
type ConnectionCallback func(connected bool)

// FindDevices returns all attached MAKCU candidate ports.
func FindDevices() []DeviceInfo {
	return serial.FindDevices()
}

// FindFirstDevice returns the path of the first attached MAKCU port, or "".
func FindFirstDevice() string {
	return serial.FindFirstDevice()
}
