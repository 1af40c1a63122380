package protocol_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"makcu/protocol"
	"makcu/serial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buttonEvent struct {
	button  int
	pressed bool
}

type eventRecorder struct {
	mu     sync.Mutex
	events []buttonEvent
}

func (r *eventRecorder) record(button int, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, buttonEvent{button, pressed})
}

func (r *eventRecorder) snapshot() []buttonEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]buttonEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newTestEngine(t *testing.T) (*protocol.Engine, *serial.MockPort, *atomic.Uint32) {
	t.Helper()

	port := serial.NewMockPort("mock0")
	ch := serial.NewChannel("mock0", serial.WithOpener(func(cfg serial.Config) (serial.Port, error) {
		return port, nil
	}))
	require.NoError(t, ch.Open(115200))

	mask := new(atomic.Uint32)
	eng := protocol.NewEngine(ch, mask, nil)
	t.Cleanup(func() {
		eng.Stop(nil)
		ch.Close()
	})
	return eng, port, mask
}

func TestSendFramesCommand(t *testing.T) {
	eng, port, _ := newTestEngine(t)

	require.NoError(t, eng.Send("km.left(1)"))
	writes := port.GetWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte("km.left(1)\r\n"), writes[0])
}

func TestTrackedResponsesRouteInFIFOOrder(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	f1 := eng.SendTracked("km.version()", true, time.Second)
	f2 := eng.SendTracked("km.move(1,1)", false, 100*time.Millisecond)
	f3 := eng.SendTracked("km.serial()", true, time.Second)

	port.FeedRead([]byte("v3.2\r\nSN-42\r\n"))

	line, err := f1.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)

	line, err = f3.Await()
	require.NoError(t, err)
	assert.Equal(t, "SN-42", line)

	// The non-expecting command never absorbs a response; it retires
	// through the timeout sweep.
	assert.Equal(t, 1, eng.PendingCount())
	_, err = f2.Await()
	assert.ErrorIs(t, err, protocol.ErrTimeout)
}

func TestButtonInterleaveWithResponse(t *testing.T) {
	eng, port, mask := newTestEngine(t)

	rec := &eventRecorder{}
	eng.SetButtonHandler(rec.record)
	eng.Start()

	f := eng.SendTracked("km.version()", true, time.Second)

	port.FeedRead([]byte{0x01, 'v', '3', '.', '2', '\r', 0x00})

	line, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	events := rec.snapshot()
	assert.Equal(t, []buttonEvent{{0, true}, {0, false}}, events)
	assert.Equal(t, uint32(0), mask.Load())
}

func TestButtonMaskUpdatesBeforeCallback(t *testing.T) {
	eng, port, mask := newTestEngine(t)

	observed := make(chan uint32, 8)
	eng.SetButtonHandler(func(button int, pressed bool) {
		observed <- mask.Load()
	})
	eng.Start()

	port.FeedRead([]byte{0x03})

	// Two edges fire (left, right); each must observe its own bit already
	// set in the shared mask.
	first := <-observed
	second := <-observed
	assert.NotZero(t, first&0x01)
	assert.Equal(t, uint32(0x03), second)
}

func TestTrackedTimeoutWindow(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	eng.Start()

	start := time.Now()
	f := eng.SendTracked("km.version()", true, 50*time.Millisecond)
	_, err := f.Await()
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, protocol.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestTimeoutPreservesOrderOfSurvivors(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	fShort := eng.SendTracked("km.serial()", true, 40*time.Millisecond)
	fLong := eng.SendTracked("km.version()", true, time.Second)

	_, err := fShort.Await()
	require.ErrorIs(t, err, protocol.ErrTimeout)

	port.FeedRead([]byte("v3.2\r\n"))
	line, err := fLong.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)
}

func TestStopFailsOutstandingCommands(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	eng.Start()

	f := eng.SendTracked("km.version()", true, 10*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := f.Await()
		done <- err
	}()

	eng.Stop(nil)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, protocol.ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("future not resolved after engine stop")
	}
}

func TestClosedEngineRejectsSends(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	eng.Start()
	eng.Stop(nil)

	assert.ErrorIs(t, eng.Send("km.left(1)"), protocol.ErrDisconnected)

	_, err := eng.SendTracked("km.version()", true, time.Second).Await()
	assert.ErrorIs(t, err, protocol.ErrDisconnected)
	assert.Equal(t, 0, eng.PendingCount())
}

func TestStrayLinesAreDiscarded(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	port.FeedRead([]byte("spontaneous diagnostic\r\n"))
	time.Sleep(20 * time.Millisecond)

	f := eng.SendTracked("km.version()", true, time.Second)
	port.FeedRead([]byte("v3.2\r\n"))

	line, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)
}

func TestLineTerminatorVariants(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	f1 := eng.SendTracked("a()", true, time.Second)
	f2 := eng.SendTracked("b()", true, time.Second)
	f3 := eng.SendTracked("c()", true, time.Second)

	port.FeedRead([]byte("one\r"))
	port.FeedRead([]byte("two\n"))
	port.FeedRead([]byte("three\r\n"))

	line, err := f1.Await()
	require.NoError(t, err)
	assert.Equal(t, "one", line)

	line, err = f2.Await()
	require.NoError(t, err)
	assert.Equal(t, "two", line)

	line, err = f3.Await()
	require.NoError(t, err)
	assert.Equal(t, "three", line)
}

func TestCommandEchoIsSkipped(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	f := eng.SendTracked("km.version()", true, time.Second)
	port.FeedRead([]byte("km.version()\r\nv3.2\r\n"))

	line, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)
}

func TestPromptPrefixIsStripped(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	f := eng.SendTracked("km.version()", true, time.Second)
	port.FeedRead([]byte(">>> v3.2\r\n"))

	line, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)
}

func TestCallbackPanicDoesNotKillListener(t *testing.T) {
	eng, port, _ := newTestEngine(t)

	eng.SetButtonHandler(func(button int, pressed bool) {
		panic("boom")
	})
	eng.Start()

	port.FeedRead([]byte{0x01})
	time.Sleep(20 * time.Millisecond)

	f := eng.SendTracked("km.version()", true, time.Second)
	port.FeedRead([]byte("v3.2\r\n"))

	line, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "v3.2", line)
}

func TestReadErrorStopsEngineAndFailsPending(t *testing.T) {
	eng, port, _ := newTestEngine(t)
	eng.Start()

	f := eng.SendTracked("km.version()", true, 10*time.Second)
	port.SetReadError(assert.AnError)

	_, err := f.Await()
	assert.ErrorIs(t, err, protocol.ErrDisconnected)

	select {
	case <-eng.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not exit after read error")
	}
}
