package makcu

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"makcu/protocol"
	"makcu/serial"
)

// Link speeds. The device always enumerates at the initial rate and is
// upgraded in-band during connect.
const (
	InitialBaudRate   = 115200
	HighSpeedBaudRate = 4000000
)

// connectVersionTimeout bounds the version probe that validates a fresh
// connection.
const connectVersionTimeout = 100 * time.Millisecond

// trackedTimeout is the deadline for short query commands (catch, serial,
// MAC).
const trackedTimeout = 50 * time.Millisecond

// getVersion retry schedule. The device can be briefly unstable right after
// the baud-rate switch, so the probe escalates instead of failing hard.
var (
	versionPreWaits = [3]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}
	versionTimeouts = [3]time.Duration{75 * time.Millisecond, 150 * time.Millisecond, 300 * time.Millisecond}
)

// validationMarker must appear in the version response when a baud-rate
// change is verified.
const validationMarker = "km.MAKCU"

// Device is the high-level MAKCU facade. All methods are safe for
// concurrent use. Hot-path operations are fire-and-forget and map every
// failure to a false return; query operations return a zero value on
// failure. Callers needing detail can inspect Status.
type Device struct {
	logger *slog.Logger

	channelFactory func(device string) *serial.Channel
	enumerate      func() []DeviceInfo

	mu      sync.Mutex // serialises connect, disconnect, baud changes
	channel *serial.Channel

	// engine is replaced across runtime baud switches; API threads load
	// it without holding the device mutex.
	engine atomic.Pointer[protocol.Engine]

	state stateCache

	infoMu sync.RWMutex
	info   DeviceInfo

	callbackMu         sync.Mutex
	buttonCallback     MouseButtonCallback
	connectionCallback ConnectionCallback

	supervisorStop chan struct{}
	supervisorOnce *sync.Once

	// alive is the liveness token consulted by satellite objects such as
	// batch builders. Cleared by Close.
	alive atomic.Bool
}

// DeviceOption is a functional option for configuring a Device.
type DeviceOption func(*Device)

// WithLogger sets the logger used by the device and its listener.
func WithLogger(logger *slog.Logger) DeviceOption {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithChannelFactory sets a custom channel constructor for testing.
func WithChannelFactory(fn func(device string) *serial.Channel) DeviceOption {
	return func(d *Device) {
		d.channelFactory = fn
	}
}

// WithEnumerator sets a custom device enumerator for testing.
func WithEnumerator(fn func() []DeviceInfo) DeviceOption {
	return func(d *Device) {
		d.enumerate = fn
	}
}

// NewDevice creates a disconnected device handle.
func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		enumerate: FindDevices,
	}
	d.channelFactory = func(device string) *serial.Channel {
		return serial.NewChannel(device, serial.WithLogger(d.logger))
	}
	for _, opt := range opts {
		opt(d)
	}
	d.alive.Store(true)
	return d
}

// Connect opens the device, upgrades the link to high speed and starts the
// listener and supervisor. With an empty port the first enumerated MAKCU
// device is used. Returns true on success, and true immediately when
// already connected.
func (d *Device) Connect(port string) bool {
	return d.ConnectErr(port) == nil
}

// ConnectErr is the detailed variant of Connect: it returns nil on success
// or a *ConnectError carrying the status the facade was left in.
func (d *Device) ConnectErr(port string) error {
	d.mu.Lock()
	newEdge, err := d.connectLocked(port)
	d.mu.Unlock()

	// The callback runs outside the device mutex so it may re-enter the
	// API freely.
	if newEdge {
		d.fireConnectionCallback(true)
	}
	return err
}

func (d *Device) connectLocked(port string) (bool, error) {
	if d.state.connected.Load() {
		return false, nil
	}

	info, err := d.resolveTarget(port)
	if err != nil {
		d.state.status.Store(int32(StatusError))
		return false, &ConnectError{Status: StatusError, Reason: err}
	}

	d.state.status.Store(int32(StatusConnecting))
	d.logger.Info("connecting", "port", info.Port)

	ch := d.channelFactory(info.Port)
	if err := ch.Open(InitialBaudRate); err != nil {
		d.state.status.Store(int32(StatusError))
		return false, &ConnectError{Status: StatusError, Reason: err}
	}

	if err := ch.SwitchBaud(HighSpeedBaudRate); err != nil {
		ch.Close()
		d.state.status.Store(int32(StatusError))
		return false, &ConnectError{Status: StatusError, Reason: err}
	}

	eng := protocol.NewEngine(ch, &d.state.buttons, d.logger)
	eng.SetButtonHandler(d.dispatchButton)
	eng.Start()

	fail := func(reason error) (bool, error) {
		eng.Stop(protocol.ErrDisconnected)
		ch.Close()
		d.state.status.Store(int32(StatusError))
		return false, &ConnectError{Status: StatusError, Reason: reason}
	}

	if err := eng.Send(protocol.CmdMonitorOn); err != nil {
		return fail(fmt.Errorf("failed to enable button monitoring: %w", err))
	}

	if _, err := eng.SendTracked(protocol.CmdVersion, true, connectVersionTimeout).Await(); err != nil {
		return fail(fmt.Errorf("version probe failed: %w", err))
	}

	// Commit. Everything below must be established before the connected
	// flag flips true, which is the publication point for API threads.
	d.channel = ch
	d.engine.Store(eng)
	info.IsConnected = true
	d.setInfo(info)
	d.state.status.Store(int32(StatusConnected))
	d.state.monitoring.Store(true)
	d.state.locksValid.Store(false)
	d.state.connected.Store(true)

	stopCh := make(chan struct{})
	d.supervisorStop = stopCh
	d.supervisorOnce = &sync.Once{}
	go d.supervise(stopCh)

	d.logger.Info("connected", "port", info.Port, "baud", HighSpeedBaudRate)
	return true, nil
}

func (d *Device) resolveTarget(port string) (DeviceInfo, error) {
	if port != "" {
		return DeviceInfo{
			Port:        port,
			Description: serial.DescriptionCH343,
			VID:         serial.VendorID,
			PID:         serial.ProductID,
		}, nil
	}
	devices := d.enumerate()
	if len(devices) == 0 {
		return DeviceInfo{}, fmt.Errorf("no MAKCU device found")
	}
	return devices[0], nil
}

// Disconnect tears down the connection. Idempotent; the connection callback
// fires once per connected-to-disconnected edge regardless of how many
// callers race here or with the supervisor.
func (d *Device) Disconnect() {
	d.mu.Lock()
	won := d.state.connected.CompareAndSwap(true, false)
	if won {
		d.teardownLocked()
	}
	d.mu.Unlock()

	if won {
		d.fireConnectionCallback(false)
	}
}

// Close disconnects and invalidates the device handle. Outstanding batch
// builders become no-ops.
func (d *Device) Close() {
	d.alive.Store(false)
	d.Disconnect()
}

// teardownLocked demotes all connection state. Callers must hold d.mu and
// must have won the connected true-to-false CAS; the connection callback is
// fired by the caller after releasing the lock.
func (d *Device) teardownLocked() {
	d.state.status.Store(int32(StatusDisconnected))
	d.state.reset()

	if eng := d.engine.Load(); eng != nil {
		eng.Stop(protocol.ErrDisconnected)
	}
	if d.channel != nil {
		d.channel.Close()
	}
	if d.supervisorOnce != nil {
		stopCh := d.supervisorStop
		d.supervisorOnce.Do(func() {
			close(stopCh)
		})
	}

	d.infoMu.Lock()
	d.info.IsConnected = false
	port := d.info.Port
	d.infoMu.Unlock()

	d.logger.Info("disconnected", "port", port)
}

// IsConnected reports whether the facade is live.
func (d *Device) IsConnected() bool {
	return d.state.connected.Load()
}

// Status returns the current connection status.
func (d *Device) Status() ConnectionStatus {
	return ConnectionStatus(d.state.status.Load())
}

// GetDeviceInfo returns a snapshot of the connected device's identity.
func (d *Device) GetDeviceInfo() DeviceInfo {
	d.infoMu.RLock()
	defer d.infoMu.RUnlock()
	info := d.info
	info.IsConnected = d.state.connected.Load()
	return info
}

func (d *Device) setInfo(info DeviceInfo) {
	d.infoMu.Lock()
	d.info = info
	d.infoMu.Unlock()
}

// SetMouseButtonCallback installs the handler fired on each physical button
// edge. Pass nil to remove it.
func (d *Device) SetMouseButtonCallback(fn MouseButtonCallback) {
	d.callbackMu.Lock()
	d.buttonCallback = fn
	d.callbackMu.Unlock()
}

// SetConnectionCallback installs the handler fired once per connection
// edge. Pass nil to remove it.
func (d *Device) SetConnectionCallback(fn ConnectionCallback) {
	d.callbackMu.Lock()
	d.connectionCallback = fn
	d.callbackMu.Unlock()
}

// dispatchButton adapts listener bit edges to the typed callback. The
// button mask has already been updated when this runs.
func (d *Device) dispatchButton(bit int, pressed bool) {
	d.callbackMu.Lock()
	fn := d.buttonCallback
	d.callbackMu.Unlock()
	if fn != nil {
		fn(MouseButton(bit), pressed)
	}
}

// fireConnectionCallback invokes the connection callback outside all device
// locks. Panics are swallowed.
func (d *Device) fireConnectionCallback(connected bool) {
	d.callbackMu.Lock()
	fn := d.connectionCallback
	d.callbackMu.Unlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("connection callback panicked", "panic", r)
		}
	}()
	fn(connected)
}

// send emits a fire-and-forget command, mapping every failure to false.
func (d *Device) send(cmd string) bool {
	if !d.state.connected.Load() {
		return false
	}
	eng := d.engine.Load()
	if eng == nil {
		return false
	}
	return eng.Send(cmd) == nil
}

// tracked emits a command that expects a response and waits for it.
func (d *Device) tracked(cmd string, timeout time.Duration) (string, error) {
	if !d.state.connected.Load() {
		return "", ErrDisconnected
	}
	eng := d.engine.Load()
	if eng == nil {
		return "", ErrDisconnected
	}
	return eng.SendTracked(cmd, true, timeout).Await()
}

// MouseDown presses a button.
func (d *Device) MouseDown(button MouseButton) bool {
	cmd, err := protocol.PressCommand(int(button))
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// MouseUp releases a button.
func (d *Device) MouseUp(button MouseButton) bool {
	cmd, err := protocol.ReleaseCommand(int(button))
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// Click presses and releases a button. No host-side pause is inserted; the
// device sequences the two commands itself.
func (d *Device) Click(button MouseButton) bool {
	return d.MouseDown(button) && d.MouseUp(button)
}

// MouseMove moves the cursor by a relative offset.
func (d *Device) MouseMove(x, y int) bool {
	cmd, err := protocol.MoveCommand(x, y)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// MouseMoveSmooth moves in the given number of interpolated segments.
func (d *Device) MouseMoveSmooth(x, y, segments int) bool {
	cmd, err := protocol.SmoothMoveCommand(x, y, segments)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// MouseMoveBezier moves along a curve through a control point.
func (d *Device) MouseMoveBezier(x, y, segments, ctrlX, ctrlY int) bool {
	cmd, err := protocol.BezierMoveCommand(x, y, segments, ctrlX, ctrlY)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// MouseMoveTo moves the cursor to an absolute position.
func (d *Device) MouseMoveTo(x, y int) bool {
	cmd, err := protocol.MoveToCommand(x, y)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// MouseDrag presses, moves, and releases.
func (d *Device) MouseDrag(button MouseButton, x, y int) bool {
	return d.MouseDown(button) && d.MouseMove(x, y) && d.MouseUp(button)
}

// MouseDragSmooth drags with a segmented move.
func (d *Device) MouseDragSmooth(button MouseButton, x, y, segments int) bool {
	return d.MouseDown(button) && d.MouseMoveSmooth(x, y, segments) && d.MouseUp(button)
}

// MouseDragBezier drags along a curve.
func (d *Device) MouseDragBezier(button MouseButton, x, y, segments, ctrlX, ctrlY int) bool {
	return d.MouseDown(button) && d.MouseMoveBezier(x, y, segments, ctrlX, ctrlY) && d.MouseUp(button)
}

// MouseWheel scrolls by delta notches.
func (d *Device) MouseWheel(delta int) bool {
	cmd, err := protocol.WheelCommand(delta)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// MouseCalibrate re-zeroes the device's position tracking.
func (d *Device) MouseCalibrate() bool {
	return d.send(protocol.CmdZero)
}

// SetScreenBounds declares the host screen size for absolute moves.
func (d *Device) SetScreenBounds(width, height int) bool {
	cmd, err := protocol.ScreenCommand(width, height)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

// Reset soft-resets the controller firmware.
func (d *Device) Reset() bool {
	return d.send(protocol.CmdInit)
}

// DeviceDelay queues a pause on the device between preceding and following
// commands.
func (d *Device) DeviceDelay(ms int) bool {
	cmd, err := protocol.DelayCommand(ms)
	if err != nil {
		return false
	}
	return d.send(cmd)
}

func (d *Device) lockTarget(target LockTarget, lock bool) bool {
	cmd, err := protocol.LockCommand(int(target), lock)
	if err != nil {
		return false
	}
	if !d.send(cmd) {
		return false
	}
	d.state.setLock(target, lock)
	return true
}

// LockMouseX masks physical X-axis movement.
func (d *Device) LockMouseX(lock bool) bool { return d.lockTarget(LockX, lock) }

// LockMouseY masks physical Y-axis movement.
func (d *Device) LockMouseY(lock bool) bool { return d.lockTarget(LockY, lock) }

// LockMouseLeft masks the physical left button.
func (d *Device) LockMouseLeft(lock bool) bool { return d.lockTarget(LockLeft, lock) }

// LockMouseRight masks the physical right button.
func (d *Device) LockMouseRight(lock bool) bool { return d.lockTarget(LockRight, lock) }

// LockMouseMiddle masks the physical middle button.
func (d *Device) LockMouseMiddle(lock bool) bool { return d.lockTarget(LockMiddle, lock) }

// LockMouseSide1 masks the first physical side button.
func (d *Device) LockMouseSide1(lock bool) bool { return d.lockTarget(LockSide1, lock) }

// LockMouseSide2 masks the second physical side button.
func (d *Device) LockMouseSide2(lock bool) bool { return d.lockTarget(LockSide2, lock) }

// IsMouseXLocked reads the cached X lock state.
func (d *Device) IsMouseXLocked() bool { return d.state.lockState(LockX) }

// IsMouseYLocked reads the cached Y lock state.
func (d *Device) IsMouseYLocked() bool { return d.state.lockState(LockY) }

// IsMouseLeftLocked reads the cached left-button lock state.
func (d *Device) IsMouseLeftLocked() bool { return d.state.lockState(LockLeft) }

// IsMouseRightLocked reads the cached right-button lock state.
func (d *Device) IsMouseRightLocked() bool { return d.state.lockState(LockRight) }

// IsMouseMiddleLocked reads the cached middle-button lock state.
func (d *Device) IsMouseMiddleLocked() bool { return d.state.lockState(LockMiddle) }

// IsMouseSide1Locked reads the cached side-1 lock state.
func (d *Device) IsMouseSide1Locked() bool { return d.state.lockState(LockSide1) }

// IsMouseSide2Locked reads the cached side-2 lock state.
func (d *Device) IsMouseSide2Locked() bool { return d.state.lockState(LockSide2) }

// GetAllLockStates returns a snapshot of every lock target's cached state.
func (d *Device) GetAllLockStates() map[string]bool {
	states := make(map[string]bool, protocol.NumLockTargets)
	for t := LockX; t <= LockSide2; t++ {
		states[t.String()] = d.state.lockState(t)
	}
	return states
}

func (d *Device) catchButton(button MouseButton) uint8 {
	cmd, err := protocol.CatchCommand(int(button))
	if err != nil {
		return 0
	}
	line, err := d.tracked(cmd, trackedTimeout)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(line, 10, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

// CatchMouseLeft drains and returns the device-side left-click counter.
func (d *Device) CatchMouseLeft() uint8 { return d.catchButton(MouseButtonLeft) }

// CatchMouseRight drains and returns the device-side right-click counter.
func (d *Device) CatchMouseRight() uint8 { return d.catchButton(MouseButtonRight) }

// CatchMouseMiddle drains and returns the device-side middle-click counter.
func (d *Device) CatchMouseMiddle() uint8 { return d.catchButton(MouseButtonMiddle) }

// CatchMouseSide1 drains and returns the device-side side-1 click counter.
func (d *Device) CatchMouseSide1() uint8 { return d.catchButton(MouseButtonSide1) }

// CatchMouseSide2 drains and returns the device-side side-2 click counter.
func (d *Device) CatchMouseSide2() uint8 { return d.catchButton(MouseButtonSide2) }

// EnableButtonMonitoring turns the out-of-band button event stream on or
// off.
func (d *Device) EnableButtonMonitoring(enable bool) bool {
	if !d.send(protocol.MonitorCommand(enable)) {
		return false
	}
	d.state.monitoring.Store(enable)
	return true
}

// IsButtonMonitoringEnabled reports whether button events are expected.
func (d *Device) IsButtonMonitoringEnabled() bool {
	return d.state.monitoring.Load()
}

// GetButtonMask returns the current physical button bitmask.
func (d *Device) GetButtonMask() uint8 {
	return uint8(d.state.buttons.Load())
}

// MouseButtonState reads one button's pressed state from the mask.
func (d *Device) MouseButtonState(button MouseButton) bool {
	if button < MouseButtonLeft || button > MouseButtonSide2 {
		return false
	}
	return d.state.buttons.Load()&(uint32(1)<<uint(button)) != 0
}

// GetVersion queries the firmware version. The probe retries with widening
// deadlines because the device may still be settling after the baud
// upgrade. Returns "" if every attempt fails.
func (d *Device) GetVersion() string {
	for i := 0; i < len(versionTimeouts); i++ {
		if !d.state.connected.Load() {
			return ""
		}
		time.Sleep(versionPreWaits[i])
		line, err := d.tracked(protocol.CmdVersion, versionTimeouts[i])
		if err == nil && line != "" {
			return line
		}
	}
	return ""
}

// GetMouseSerial returns the spoofed serial string, or "" on failure.
func (d *Device) GetMouseSerial() string {
	line, err := d.tracked(protocol.CmdSerialGet, trackedTimeout)
	if err != nil {
		return ""
	}
	return line
}

// SetMouseSerial overrides the serial string the device reports.
func (d *Device) SetMouseSerial(serial string) bool {
	return d.send(protocol.SerialSpoofCommand(serial))
}

// ResetMouseSerial restores the factory serial string.
func (d *Device) ResetMouseSerial() bool {
	return d.send(protocol.CmdSerialReset)
}

// GetMAC returns the device's MAC identifier, or "" on failure.
func (d *Device) GetMAC() string {
	line, err := d.tracked(protocol.CmdMAC, trackedTimeout)
	if err != nil {
		return ""
	}
	return line
}

// SendRawCommand emits an arbitrary km.* command fire-and-forget. Escape
// hatch for protocol surface the typed API does not cover.
func (d *Device) SendRawCommand(cmd string) bool {
	if cmd == "" {
		return false
	}
	return d.send(cmd)
}

// QueryRawCommand emits an arbitrary km.* command and waits for its
// response line.
func (d *Device) QueryRawCommand(cmd string, timeout time.Duration) (string, error) {
	if cmd == "" {
		return "", ErrValidation
	}
	return d.tracked(cmd, timeout)
}

// EnableHighPerformanceMode toggles the latency-over-robustness hint.
func (d *Device) EnableHighPerformanceMode(enable bool) {
	d.state.highPerformance.Store(enable)
}

// IsHighPerformanceModeEnabled reports the performance hint.
func (d *Device) IsHighPerformanceModeEnabled() bool {
	return d.state.highPerformance.Load()
}

// SetBaudRate renegotiates the link speed at runtime. The rate is clamped
// to the device's supported range. The listener is restarted across the
// destructive reopen; outstanding tracked commands fail with
// ErrDisconnected. With validate set, a version probe must mention the
// firmware marker or the link is recovered to the initial rate; if recovery
// also fails the device disconnects.
func (d *Device) SetBaudRate(baud int, validate bool) bool {
	if baud < InitialBaudRate {
		baud = InitialBaudRate
	}
	if baud > HighSpeedBaudRate {
		baud = HighSpeedBaudRate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.connected.Load() {
		return false
	}

	if !d.switchBaudLocked(baud) {
		d.disconnectFromLocked()
		return false
	}
	if !validate {
		return true
	}

	resp, err := d.engine.Load().SendTracked(protocol.CmdVersion, true, time.Second).Await()
	if err == nil && strings.Contains(resp, validationMarker) {
		return true
	}
	d.logger.Warn("baud rate validation failed", "baud", baud, "error", err)

	if !d.switchBaudLocked(InitialBaudRate) {
		d.disconnectFromLocked()
	}
	return false
}

// switchBaudLocked performs the destructive reopen and restarts the
// listener on the new handle. Caller holds d.mu.
func (d *Device) switchBaudLocked(baud int) bool {
	if eng := d.engine.Load(); eng != nil {
		eng.Stop(protocol.ErrDisconnected)
	}

	if err := d.channel.SwitchBaud(baud); err != nil {
		d.logger.Error("baud switch failed", "baud", baud, "error", err)
		return false
	}

	eng := protocol.NewEngine(d.channel, &d.state.buttons, d.logger)
	eng.SetButtonHandler(d.dispatchButton)
	eng.Start()
	d.engine.Store(eng)

	if d.state.monitoring.Load() {
		if err := eng.Send(protocol.CmdMonitorOn); err != nil {
			return false
		}
	}
	return true
}

// disconnectFromLocked demotes state from a caller already holding d.mu.
func (d *Device) disconnectFromLocked() {
	if d.state.connected.CompareAndSwap(true, false) {
		d.teardownLocked()
		go d.fireConnectionCallback(false)
	}
}

// ClickSequence clicks each button in order with a fixed pause between
// clicks.
func (d *Device) ClickSequence(buttons []MouseButton, delay time.Duration) bool {
	for i, button := range buttons {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if !d.Click(button) {
			return false
		}
	}
	return true
}

// MovePattern replays a sequence of relative moves, smooth or immediate.
func (d *Device) MovePattern(points []Point, smooth bool, segments int) bool {
	for _, p := range points {
		var ok bool
		if smooth {
			ok = d.MouseMoveSmooth(p.X, p.Y, segments)
		} else {
			ok = d.MouseMove(p.X, p.Y)
		}
		if !ok {
			return false
		}
	}
	return true
}
