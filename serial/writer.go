package serial

import (
	"fmt"
	"sync/atomic"

	"go.bug.st/serial"
)

// RealPort implements Port using a real serial port
type RealPort struct {
	port   serial.Port
	config Config
	isOpen atomic.Bool
}

// Open opens a serial port with the given configuration
func Open(config Config) (*RealPort, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}

	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Device, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	p := &RealPort{
		port:   port,
		config: config,
	}
	p.isOpen.Store(true)
	return p, nil
}

// Write writes data to the serial port
func (p *RealPort) Write(data []byte) (int, error) {
	if !p.isOpen.Load() {
		return 0, fmt.Errorf("port is closed")
	}
	return p.port.Write(data)
}

// Read reads data from the serial port. A timed-out read returns (0, nil).
func (p *RealPort) Read(buf []byte) (int, error) {
	if !p.isOpen.Load() {
		return 0, fmt.Errorf("port is closed")
	}
	return p.port.Read(buf)
}

// Close closes the serial port
func (p *RealPort) Close() error {
	if !p.isOpen.CompareAndSwap(true, false) {
		return nil
	}
	return p.port.Close()
}

// Flush waits until all output has been transmitted
func (p *RealPort) Flush() error {
	if !p.isOpen.Load() {
		return fmt.Errorf("port is closed")
	}
	return p.port.Drain()
}

// ResetInput discards unread bytes buffered by the driver
func (p *RealPort) ResetInput() error {
	if !p.isOpen.Load() {
		return fmt.Errorf("port is closed")
	}
	return p.port.ResetInputBuffer()
}

// Name returns the device path
func (p *RealPort) Name() string {
	return p.config.Device
}

// IsOpen returns true if the port is currently open
func (p *RealPort) IsOpen() bool {
	return p.isOpen.Load()
}

// ActuallyConnected asks the driver for the modem status lines. A USB CDC
// device that has been unplugged keeps a valid handle but fails this query,
// which is what makes the probe useful as a liveness check.
func (p *RealPort) ActuallyConnected() bool {
	if !p.isOpen.Load() {
		return false
	}
	_, err := p.port.GetModemStatusBits()
	return err == nil
}
