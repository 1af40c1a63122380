package protocol_test

import (
	"testing"

	"makcu/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestButtonCommandTables(t *testing.T) {
	tests := []struct {
		button  int
		press   string
		release string
		catch   string
	}{
		{0, "km.left(1)", "km.left(0)", "km.catch_ml()"},
		{1, "km.right(1)", "km.right(0)", "km.catch_mr()"},
		{2, "km.middle(1)", "km.middle(0)", "km.catch_mm()"},
		{3, "km.ms1(1)", "km.ms1(0)", "km.catch_ms1()"},
		{4, "km.ms2(1)", "km.ms2(0)", "km.catch_ms2()"},
	}

	for _, tt := range tests {
		press, err := protocol.PressCommand(tt.button)
		require.NoError(t, err)
		assert.Equal(t, tt.press, press)

		release, err := protocol.ReleaseCommand(tt.button)
		require.NoError(t, err)
		assert.Equal(t, tt.release, release)

		catch, err := protocol.CatchCommand(tt.button)
		require.NoError(t, err)
		assert.Equal(t, tt.catch, catch)
	}
}

func TestButtonCommandRange(t *testing.T) {
	for _, button := range []int{-1, 5, 100} {
		_, err := protocol.PressCommand(button)
		assert.ErrorIs(t, err, protocol.ErrValidation)

		_, err = protocol.ReleaseCommand(button)
		assert.ErrorIs(t, err, protocol.ErrValidation)

		_, err = protocol.CatchCommand(button)
		assert.ErrorIs(t, err, protocol.ErrValidation)
	}
}

func TestLockCommandTables(t *testing.T) {
	tests := []struct {
		target int
		lock   string
		unlock string
		query  string
	}{
		{0, "km.lock_mx(1)", "km.lock_mx(0)", "km.lock_mx()"},
		{1, "km.lock_my(1)", "km.lock_my(0)", "km.lock_my()"},
		{2, "km.lock_ml(1)", "km.lock_ml(0)", "km.lock_ml()"},
		{3, "km.lock_mr(1)", "km.lock_mr(0)", "km.lock_mr()"},
		{4, "km.lock_mm(1)", "km.lock_mm(0)", "km.lock_mm()"},
		{5, "km.lock_ms1(1)", "km.lock_ms1(0)", "km.lock_ms1()"},
		{6, "km.lock_ms2(1)", "km.lock_ms2(0)", "km.lock_ms2()"},
	}

	for _, tt := range tests {
		lock, err := protocol.LockCommand(tt.target, true)
		require.NoError(t, err)
		assert.Equal(t, tt.lock, lock)

		unlock, err := protocol.LockCommand(tt.target, false)
		require.NoError(t, err)
		assert.Equal(t, tt.unlock, unlock)

		query, err := protocol.LockQueryCommand(tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.query, query)
	}

	_, err := protocol.LockCommand(7, true)
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestMonitorCommand(t *testing.T) {
	assert.Equal(t, "km.buttons(1)", protocol.MonitorCommand(true))
	assert.Equal(t, "km.buttons(0)", protocol.MonitorCommand(false))
}

func TestMoveCommandRendering(t *testing.T) {
	cmd, err := protocol.MoveCommand(50, 0)
	require.NoError(t, err)
	assert.Equal(t, "km.move(50,0)", cmd)

	cmd, err = protocol.MoveCommand(-120, 340)
	require.NoError(t, err)
	assert.Equal(t, "km.move(-120,340)", cmd)

	cmd, err = protocol.SmoothMoveCommand(10, -20, 15)
	require.NoError(t, err)
	assert.Equal(t, "km.move(10,-20,15)", cmd)

	cmd, err = protocol.BezierMoveCommand(100, 200, 20, 50, 75)
	require.NoError(t, err)
	assert.Equal(t, "km.move(100,200,20,50,75)", cmd)

	cmd, err = protocol.MoveToCommand(640, 480)
	require.NoError(t, err)
	assert.Equal(t, "km.moveto(640,480)", cmd)

	cmd, err = protocol.WheelCommand(-3)
	require.NoError(t, err)
	assert.Equal(t, "km.wheel(-3)", cmd)
}

func TestCoordinateBoundaries(t *testing.T) {
	cmd, err := protocol.MoveCommand(32767, -32767)
	require.NoError(t, err)
	assert.Equal(t, "km.move(32767,-32767)", cmd)

	_, err = protocol.MoveCommand(32768, 0)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	_, err = protocol.MoveCommand(0, -32768)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	_, err = protocol.WheelCommand(32768)
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestSegmentBoundaries(t *testing.T) {
	_, err := protocol.SmoothMoveCommand(1, 1, 1000)
	assert.NoError(t, err)

	_, err = protocol.SmoothMoveCommand(1, 1, 1001)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	_, err = protocol.SmoothMoveCommand(1, 1, 0)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	_, err = protocol.BezierMoveCommand(1, 1, 0, 1, 1)
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestScreenAndDelayValidation(t *testing.T) {
	cmd, err := protocol.ScreenCommand(1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, "km.screen(1920,1080)", cmd)

	_, err = protocol.ScreenCommand(0, 1080)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	cmd, err = protocol.DelayCommand(250)
	require.NoError(t, err)
	assert.Equal(t, "km.delay(250)", cmd)

	_, err = protocol.DelayCommand(10001)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	_, err = protocol.DelayCommand(-1)
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestSerialSpoofEscaping(t *testing.T) {
	tests := []struct {
		name   string
		serial string
		want   string
	}{
		{"plain", "ABC123", `km.serial('ABC123')`},
		{"apostrophe", "A'B", `km.serial('A\'B')`},
		{"backslash", `A\B`, `km.serial('A\\B')`},
		{"newline", "A\nB", `km.serial('A\nB')`},
		{"carriage return", "A\rB", `km.serial('A\rB')`},
		{"tab", "A\tB", `km.serial('A\tB')`},
		{"control byte", "A\x01B", `km.serial('A\x01B')`},
		{"delete", "A\x7fB", `km.serial('A\x7FB')`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, protocol.SerialSpoofCommand(tt.serial))
		})
	}
}
