package serial

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// baudFramePrefix precedes the little-endian target rate in the in-band
// baud-rate-switch frame recognised by the MAKCU firmware.
var baudFramePrefix = []byte{0xDE, 0xAD, 0x05, 0x00, 0xA5}

// reopenDelay gives the device time to retune its UART between the close
// and the reopen of a baud switch.
const reopenDelay = 50 * time.Millisecond

// Opener opens a Port for the given configuration. The default opener uses
// the real serial driver; tests substitute mock endpoints.
type Opener func(cfg Config) (Port, error)

// Channel manages the serial link to a single device across open, close and
// the destructive baud-rate reopen. Writes are serialised internally; reads
// are expected from a single reader goroutine.
type Channel struct {
	device string
	opener Opener
	logger *slog.Logger

	mu   sync.RWMutex // guards port and baud
	port Port
	baud int

	writeMu sync.Mutex
}

// ChannelOption is a functional option for configuring a Channel.
type ChannelOption func(*Channel)

// WithOpener sets a custom port opener for testing.
func WithOpener(fn Opener) ChannelOption {
	return func(c *Channel) {
		c.opener = fn
	}
}

// WithLogger sets the logger used for channel events.
func WithLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// NewChannel creates a channel for the given device path. The channel starts
// closed; call Open to establish the link.
func NewChannel(device string, opts ...ChannelOption) *Channel {
	c := &Channel{
		device: device,
		opener: defaultOpener,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultOpener(cfg Config) (Port, error) {
	return Open(cfg)
}

// Open establishes the link at the given baud rate.
func (c *Channel) Open(baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil && c.port.IsOpen() {
		return fmt.Errorf("channel already open on %s", c.device)
	}

	port, err := c.opener(Config{Device: c.device, BaudRate: baud})
	if err != nil {
		return err
	}

	c.port = port
	c.baud = baud
	c.logger.Debug("channel opened", "device", c.device, "baud", baud)
	return nil
}

// Close releases the port. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.logger.Debug("channel closed", "device", c.device)
	return err
}

// SwitchBaud renegotiates the link speed in-band. The switch is a
// destructive reopen: the frame is written and flushed at the current rate,
// the OS handle is released, and after a settling delay the port is reopened
// at the target rate. Any failure leaves the channel closed.
func (c *Channel) SwitchBaud(baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil || !c.port.IsOpen() {
		return fmt.Errorf("channel not open")
	}

	frame := make([]byte, 0, 9)
	frame = append(frame, baudFramePrefix...)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(baud))

	c.logger.Debug("switching baud rate", "device", c.device, "from", c.baud, "to", baud)

	if _, err := c.port.Write(frame); err != nil {
		c.closeLocked()
		return fmt.Errorf("failed to send baud switch frame: %w", err)
	}
	if err := c.port.Flush(); err != nil {
		c.closeLocked()
		return fmt.Errorf("failed to flush baud switch frame: %w", err)
	}

	c.closeLocked()
	time.Sleep(reopenDelay)

	port, err := c.opener(Config{Device: c.device, BaudRate: baud})
	if err != nil {
		return fmt.Errorf("failed to reopen %s at %d baud: %w", c.device, baud, err)
	}
	if !port.ActuallyConnected() {
		port.Close()
		return fmt.Errorf("port %s vanished during baud switch", c.device)
	}

	c.port = port
	c.baud = baud
	c.logger.Debug("baud rate switched", "device", c.device, "baud", baud)
	return nil
}

func (c *Channel) closeLocked() {
	if c.port != nil {
		c.port.Close()
		c.port = nil
	}
}

// Write sends bytes on the link. Concurrent writers are serialised so that
// command frames are never interleaved on the wire.
func (c *Channel) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()

	if port == nil || !port.IsOpen() {
		return fmt.Errorf("channel not open")
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Read fills buf with whatever bytes are available, returning promptly on
// the port's short read timeout. A timed-out read returns (0, nil).
func (c *Channel) Read(buf []byte) (int, error) {
	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()

	if port == nil || !port.IsOpen() {
		return 0, fmt.Errorf("channel not open")
	}
	return port.Read(buf)
}

// Flush waits until all output has been transmitted.
func (c *Channel) Flush() error {
	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()

	if port == nil || !port.IsOpen() {
		return fmt.Errorf("channel not open")
	}
	return port.Flush()
}

// ResetInput discards unread bytes buffered by the driver.
func (c *Channel) ResetInput() error {
	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()

	if port == nil || !port.IsOpen() {
		return fmt.Errorf("channel not open")
	}
	return port.ResetInput()
}

// IsOpen returns true if the channel currently holds an open port.
func (c *Channel) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port != nil && c.port.IsOpen()
}

// ActuallyConnected probes the OS for a vanished device.
func (c *Channel) ActuallyConnected() bool {
	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()

	return port != nil && port.ActuallyConnected()
}

// Name returns the device path
func (c *Channel) Name() string {
	return c.device
}

// BaudRate returns the current link speed, or 0 when closed.
func (c *Channel) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.port == nil {
		return 0
	}
	return c.baud
}
