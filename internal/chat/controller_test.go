package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskly-chat/internal/models"
)

func TestStartRequiresIdentity(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)

	require.ErrorIs(t, ctrl.Start(nil), ErrNoIdentity)
	assert.Equal(t, 0, dialer.Dials())
	assert.Equal(t, StateDisconnected, ctrl.State())
}

func TestStartOpensEncodedEndpoint(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)

	require.NoError(t, ctrl.Start(&models.Identity{ID: 7, Name: "Ann Lee&Co"}))

	require.Equal(t, 1, dialer.Dials())
	assert.Equal(t, "ws://localhost:3000/ws/chat?user_id=7&user_name=Ann%20Lee%26Co", dialer.Last().url)
	assert.Equal(t, StateConnecting, ctrl.State())

	dialer.Last().open()
	assert.Equal(t, StateConnected, ctrl.State())
}

func TestStartTwiceKeepsSingleConnection(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)

	require.NoError(t, ctrl.Start(ann))
	dialer.Last().open()
	require.NoError(t, ctrl.Start(&models.Identity{ID: 1, Name: "Ann"}))

	assert.Equal(t, 1, dialer.Dials())
	assert.Equal(t, 1, dialer.Live())
	assert.Equal(t, StateConnected, ctrl.State())
}

func TestStartWhileConnectingIsNoop(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)

	require.NoError(t, ctrl.Start(ann))
	require.NoError(t, ctrl.Start(ann))

	assert.Equal(t, 1, dialer.Dials())
	assert.Equal(t, StateConnecting, ctrl.State())
}

func TestStartWithNewIdentityReplacesConnection(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)

	require.NoError(t, ctrl.Start(ann))
	first := dialer.Last()
	first.open()

	require.NoError(t, ctrl.Start(&models.Identity{ID: 2, Name: "Bo"}))

	require.Equal(t, 2, dialer.Dials())
	assert.Equal(t, 1, first.Closes())
	assert.Equal(t, 1, dialer.Live())
	assert.Equal(t, StateConnecting, ctrl.State())

	// The old socket's close must not schedule anything.
	first.drop()
	assert.Equal(t, StateConnecting, ctrl.State())
	assert.False(t, ctrl.ReconnectPending())
}

func TestLiveFramesAppendInArrivalOrder(t *testing.T) {
	listener := &recordingListener{}
	ctrl, dialer, _ := newTestController(listener)
	require.NoError(t, ctrl.Start(ann))
	conn := dialer.Last()
	conn.open()

	conn.deliver(`{"id":3,"user_id":2,"user_name":"Bo","message":"c"}`)
	conn.deliver(`{"id":1,"user_id":2,"user_name":"Bo","message":"a"}`)
	conn.deliver(`{"id":2,"user_id":1,"user_name":"Ann","message":"b","time":"2024-01-01T00:00:00Z"}`)

	got := ctrl.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, bodies(got))
	assert.Equal(t, bodies(got), bodies(listener.appended))
}

func TestMalformedFrameIsDiscarded(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))
	conn := dialer.Last()
	conn.open()

	for _, raw := range []string{`not json`, `[1,2]`, `{"user_id":1,"message":"   "}`, `null`} {
		conn.deliver(raw)
	}
	conn.deliver(`{"user_id":2,"user_name":"Bo","message":"ok"}`)

	assert.Equal(t, []string{"ok"}, bodies(ctrl.Messages()))
	assert.Equal(t, StateConnected, ctrl.State())
	assert.Equal(t, 0, conn.Closes())
}

func TestCloseSchedulesSingleReconnect(t *testing.T) {
	ctrl, dialer, clock := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))
	conn := dialer.Last()
	conn.open()

	conn.drop()
	conn.drop()

	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, 1, dialer.Dials())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 2, dialer.Dials())
	assert.Equal(t, StateConnecting, ctrl.State())
	assert.Equal(t, 0, clock.Pending())
}

func TestCloseWhileConnectingSchedulesReconnect(t *testing.T) {
	ctrl, dialer, clock := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))

	dialer.Last().drop()

	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.Equal(t, 1, clock.Pending())
}

func TestReconnectIsUnboundedWithFixedDelay(t *testing.T) {
	ctrl, dialer, clock := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))

	for attempt := 1; attempt <= 5; attempt++ {
		dialer.Last().drop()
		clock.Advance(DefaultReconnectDelay)
		require.Equal(t, attempt+1, dialer.Dials())
	}
	assert.Equal(t, StateConnecting, ctrl.State())
}

func TestErrorClosesTransportWithoutScheduling(t *testing.T) {
	ctrl, dialer, clock := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))
	conn := dialer.Last()
	conn.open()

	conn.fail(errors.New("boom"))

	assert.Equal(t, 1, conn.Closes())
	assert.Equal(t, 0, clock.Pending())

	conn.drop()
	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.Equal(t, 1, clock.Pending())
}

func TestStopIgnoresLateTransportEvents(t *testing.T) {
	listener := &recordingListener{}
	ctrl, dialer, clock := newTestController(listener)
	require.NoError(t, ctrl.Start(ann))
	conn := dialer.Last()
	conn.open()
	conn.deliver(`{"user_id":2,"user_name":"Bo","message":"before"}`)

	ctrl.Stop()

	require.NotPanics(t, func() {
		conn.deliver(`{"user_id":2,"user_name":"Bo","message":"after"}`)
		conn.open()
		conn.fail(errors.New("late"))
		conn.drop()
	})

	assert.Equal(t, []string{"before"}, bodies(ctrl.Messages()))
	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.Equal(t, 1, conn.Closes())
	assert.Equal(t, 0, clock.Pending())
	assert.Equal(t, []bool{true, false}, listener.Presence())
	assert.ErrorIs(t, ctrl.Start(ann), ErrStopped)
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	ctrl, dialer, clock := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))
	dialer.Last().drop()
	require.Equal(t, 1, clock.Pending())

	ctrl.Stop()
	clock.Advance(10 * DefaultReconnectDelay)

	assert.Equal(t, 1, dialer.Dials())
	assert.Equal(t, 0, clock.Pending())
	assert.False(t, ctrl.ReconnectPending())
}

func TestRestartCancelsPendingTimer(t *testing.T) {
	ctrl, dialer, clock := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))
	dialer.Last().drop()

	require.NoError(t, ctrl.Start(ann))
	require.Equal(t, 2, dialer.Dials())

	clock.Advance(DefaultReconnectDelay)
	assert.Equal(t, 2, dialer.Dials())
}

func TestDropAndRecover(t *testing.T) {
	listener := &recordingListener{}
	ctrl, dialer, clock := newTestController(listener)
	presence := NewPresence(ctrl)

	require.NoError(t, ctrl.Start(ann))
	first := dialer.Last()
	first.open()
	first.deliver(`{"id":1,"user_id":2,"user_name":"Bo","message":"hi"}`)
	require.True(t, presence.Connected())

	first.drop()
	assert.False(t, presence.Connected())
	assert.Equal(t, "reconnecting", presence.Status())

	clock.Advance(3000 * time.Millisecond)
	require.Equal(t, 2, dialer.Dials())
	second := dialer.Last()
	assert.NotSame(t, first, second)

	second.open()
	assert.True(t, presence.Connected())
	assert.Equal(t, "connected", presence.Status())
	assert.Equal(t, []bool{true, false, true}, listener.Presence())
	assert.Equal(t, []string{"hi"}, bodies(ctrl.Messages()))
}

func TestSendFailureClosesTransport(t *testing.T) {
	ctrl, dialer, _ := newTestController(nil)
	require.NoError(t, ctrl.Start(ann))
	conn := dialer.Last()
	conn.open()
	conn.sendErr = errors.New("broken pipe")

	require.Error(t, ctrl.transmit([]byte(`{"message":"x"}`)))
	assert.Equal(t, 1, conn.Closes())
}

func bodies(msgs []models.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Message)
	}
	return out
}
