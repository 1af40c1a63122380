package serial

import (
	"io"
	"time"
)

// Target USB identity of the MAKCU controller.
const (
	VendorID  = 0x1A86
	ProductID = 0x55D3
)

// Known USB description strings reported by the CH343/CH340 bridge.
const (
	DescriptionCH343 = "USB-Enhanced-SERIAL CH343"
	DescriptionCH340 = "USB-SERIAL CH340"
)

// readTimeout bounds every blocking read so the listener can notice
// shutdown promptly. Tuned for latency, not throughput.
const readTimeout = 5 * time.Millisecond

// Config contains serial port configuration settings. The MAKCU link is
// always 8-N-1 with no flow control, so only the device and speed vary.
type Config struct {
	Device   string
	BaudRate int
}

// Port defines the interface for serial port operations
type Port interface {
	io.ReadWriteCloser

	// Flush waits until all output has been transmitted
	Flush() error

	// ResetInput discards unread bytes buffered by the driver
	ResetInput() error

	// Name returns the device path
	Name() string

	// IsOpen returns true if the port is currently open
	IsOpen() bool

	// ActuallyConnected probes the OS for a vanished device,
	// independently of software open state
	ActuallyConnected() bool
}

// DeviceInfo describes an enumerated MAKCU candidate port.
type DeviceInfo struct {
	Port        string
	Description string
	VID         uint16
	PID         uint16
	IsConnected bool
}
