package makcu

import "sync/atomic"

// stateCache holds the facade's shared atomic state. The connected flag is
// the publication point: all connect-time state is stored before it flips
// true, and every command path loads it before touching the engine. Pure
// cache reads (lock state, button mask, status) do not consult it.
type stateCache struct {
	// buttons has bit i set iff MouseButton ordinal i is physically
	// pressed. Only the listener sets or clears bits; reset zeroes it on
	// disconnect. Bits 5-7 stay zero.
	buttons atomic.Uint32

	// locks has bit ordinal(LockTarget) set iff that lock is engaged.
	// locksValid distinguishes known-unlocked from unknown; the cache
	// starts invalid and is invalidated again on disconnect.
	locks      atomic.Uint32
	locksValid atomic.Bool

	status          atomic.Int32
	connected       atomic.Bool
	monitoring      atomic.Bool
	highPerformance atomic.Bool
}

// setLock updates one lock bit after a successful lock command and marks the
// cache valid.
func (s *stateCache) setLock(target LockTarget, locked bool) {
	fbit := uint32(1) << uint(target)
	for {
		old := s.locks.Load()
		next := old &^ fbit
		if locked {
			next = old | fbit
		}
		if s.locks.CompareAndSwap(old, next) {
			break
		}
	}
	s.locksValid.Store(true)
}

// lockState reads one lock bit. An invalid cache reads as unlocked, which is
// what a fresh connection means: the device boots with no locks engaged.
func (s *stateCache) lockState(target LockTarget) bool {
	if !s.locksValid.Load() {
		return false
	}
	return s.locks.Load()&(uint32(1)<<uint(target)) != 0
}

// reset clears all per-connection state on disconnect.
func (s *stateCache) reset() {
	s.buttons.Store(0)
	s.locks.Store(0)
	s.locksValid.Store(false)
	s.monitoring.Store(false)
}
