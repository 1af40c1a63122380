package serial

import (
	"fmt"
	"sync"
	"time"
)

// MockPort implements Port for testing purposes. It records every write and
// serves scripted bytes to readers, mimicking the real driver's short read
// timeout by returning (0, nil) when nothing is pending.
type MockPort struct {
	mu       sync.Mutex
	device   string
	baud     int
	isOpen   bool
	alive    bool
	writes   [][]byte
	pending  []byte
	writeErr error // If set, Write will return this error
	readErr  error // If set, Read will return this error

	// responder, when set, is invoked for each write; returned bytes are
	// queued as subsequent reads.
	responder func(data []byte) []byte

	dataReady chan struct{}
}

// NewMockPort creates a new open mock port.
func NewMockPort(device string) *MockPort {
	return &MockPort{
		device:    device,
		isOpen:    true,
		alive:     true,
		dataReady: make(chan struct{}, 1),
	}
}

// Write records data and feeds it to the responder if one is installed.
func (p *MockPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if !p.isOpen {
		p.mu.Unlock()
		return 0, fmt.Errorf("port is closed")
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.writes = append(p.writes, dataCopy)
	responder := p.responder
	p.mu.Unlock()

	if responder != nil {
		if reply := responder(dataCopy); len(reply) > 0 {
			p.FeedRead(reply)
		}
	}
	return len(data), nil
}

// Read returns pending scripted bytes, or (0, nil) after the mock's read
// timeout elapses with nothing available.
func (p *MockPort) Read(buf []byte) (int, error) {
	deadline := time.After(readTimeout)
	for {
		p.mu.Lock()
		if !p.isOpen {
			p.mu.Unlock()
			return 0, fmt.Errorf("port is closed")
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()
			return 0, err
		}
		if len(p.pending) > 0 {
			n := copy(buf, p.pending)
			p.pending = p.pending[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.dataReady:
		case <-deadline:
			return 0, nil
		}
	}
}

// Close closes the mock port
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = false
	return nil
}

// Flush is a no-op for the mock port
func (p *MockPort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isOpen {
		return fmt.Errorf("port is closed")
	}
	return nil
}

// ResetInput discards scripted bytes that have not been read yet.
func (p *MockPort) ResetInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isOpen {
		return fmt.Errorf("port is closed")
	}
	p.pending = nil
	return nil
}

// Name returns the mock device path
func (p *MockPort) Name() string {
	return p.device
}

// IsOpen returns true if the mock port is open
func (p *MockPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

// ActuallyConnected reports the simulated physical presence of the device.
func (p *MockPort) ActuallyConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen && p.alive
}

// FeedRead queues bytes to be returned by subsequent reads.
func (p *MockPort) FeedRead(data []byte) {
	p.mu.Lock()
	p.pending = append(p.pending, data...)
	p.mu.Unlock()

	select {
	case p.dataReady <- struct{}{}:
	default:
	}
}

// SetResponder installs a hook invoked with each write; bytes it returns are
// queued as reads. Used to script device behaviour in tests.
func (p *MockPort) SetResponder(fn func(data []byte) []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responder = fn
}

// GetWrittenData returns all data written to the mock port, concatenated.
func (p *MockPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, w := range p.writes {
		out = append(out, w...)
	}
	return out
}

// GetWrites returns all individual write operations
func (p *MockPort) GetWrites() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([][]byte, len(p.writes))
	for i, w := range p.writes {
		result[i] = make([]byte, len(w))
		copy(result[i], w)
	}
	return result
}

// Reset clears all recorded writes
func (p *MockPort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = nil
}

// SetWriteError sets an error to be returned on subsequent writes
func (p *MockPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// SetReadError sets an error to be returned on subsequent reads
func (p *MockPort) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// SetAlive controls the result of ActuallyConnected, simulating an
// unplugged device whose handle is still held.
func (p *MockPort) SetAlive(alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = alive
}

// Reopen reopens a closed mock port
func (p *MockPort) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = true
	p.alive = true
}
