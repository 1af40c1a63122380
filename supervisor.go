package makcu

import "time"

// Supervisor poll cadence: starts eager so a yanked cable is noticed fast,
// then backs off while the link stays healthy.
const (
	pollMin  = 150 * time.Millisecond
	pollStep = 50 * time.Millisecond
	pollMax  = 500 * time.Millisecond
)

// supervise polls link liveness until the connection ends. Exactly one
// supervisor goroutine runs per connection; each owns its stop channel, so a
// stale supervisor from a previous connection can never interfere with a
// new one.
//
// On a failed probe the supervisor races the user's Disconnect for the
// connected true-to-false transition; the CAS winner demotes state and
// fires the connection callback, so the callback sees exactly one edge. The
// supervisor never joins itself: teardown from this goroutine simply runs
// inline and the goroutine exits.
func (d *Device) supervise(stopCh chan struct{}) {
	interval := pollMin

	for {
		if !d.state.connected.Load() {
			return
		}

		// TryLock skips the probe while a connect, disconnect or baud
		// switch holds the device mutex; the port is legitimately closed
		// for part of a baud switch and probing then would read as loss.
		if d.mu.TryLock() {
			alive := d.channel.ActuallyConnected()
			if !alive && d.state.connected.CompareAndSwap(true, false) {
				d.logger.Warn("device connection lost", "port", d.channel.Name())
				d.teardownLocked()
				d.mu.Unlock()
				d.fireConnectionCallback(false)
				return
			}
			d.mu.Unlock()
		}

		select {
		case <-stopCh:
			return
		case <-time.After(interval):
		}

		if interval < pollMax {
			interval += pollStep
		}
	}
}
