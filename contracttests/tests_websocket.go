package contracttests

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetops/driver-contract-tests/fixtures"
	"github.com/fleetops/driver-contract-tests/harness"
	"github.com/fleetops/driver-contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const socketResponseTimeout = 5 * time.Second

func DoWebSocketTests(t *T) {
	t.Run("tracking socket accepts a connection", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		session, err := t.OpenTrackingSocket(id)
		if err != nil {
			t.SkipWithReason("tracking socket endpoint is not available")
		}
		require.Equal(t, harness.SessionOpen, session.State())

		// A ping may be answered with pong, ack, or connected; some
		// deployments do not answer at all, which is acceptable for a
		// connection check.
		require.NoError(t, session.Send(servicedef.FrameTypePing,
			map[string]interface{}{"timestamp": time.Now().Unix()}))
		if reply, ok := session.AwaitMessage(func(m harness.SocketMessage) bool {
			return m.Type == servicedef.FrameTypePong ||
				m.Type == servicedef.FrameTypeAck ||
				m.Type == servicedef.FrameTypeConnected
		}, socketResponseTimeout); ok {
			t.Debug("tracking socket answered ping with %q", reply.Type)
		}
	})

	t.Run("location write surfaces as a push frame", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		session, err := t.OpenTrackingSocket(id)
		if err != nil {
			t.SkipWithReason("tracking socket endpoint is not available")
		}
		// Let the subscription inside the service settle before writing,
		// so the push cannot race the session setup.
		harness.Settle(context.Background(), 500*time.Millisecond)

		location := t.env.Factory.BuildLocation(fixtures.Overrides{
			"latitude":  55.70,
			"longitude": 37.62,
		})
		outcome, err := t.api.SubmitLocation(context.Background(), id, location)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "location rejected: %s", outcome)

		frame, ok := session.AwaitMessage(func(m harness.SocketMessage) bool {
			return m.Type == servicedef.FrameTypeLocationUpdate && m.Field("driver_id") == id
		}, socketResponseTimeout)
		require.True(t, ok, "no location_update frame within %s of the write", socketResponseTimeout)

		coords, isMap := frame.Field("location").(map[string]interface{})
		require.True(t, isMap, "location_update frame carries no location object")
		assert.Equal(t, 55.70, coords["latitude"])
		assert.Equal(t, 37.62, coords["longitude"])
		assert.NotNil(t, frame.Field("timestamp"))
	})

	t.Run("orders socket accepts a heartbeat", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		session, err := t.OpenOrdersSocket(id)
		if err != nil {
			t.SkipWithReason("orders socket endpoint is not available")
		}
		require.Equal(t, harness.SessionOpen, session.State())
		require.NoError(t, session.Send(servicedef.FrameTypeHeartbeat,
			map[string]interface{}{"timestamp": time.Now().Unix()}))

		// Any typed reply is acceptable; none at all is too.
		if reply, ok := session.AwaitMessage(func(m harness.SocketMessage) bool {
			return m.Type != ""
		}, 3*time.Second); ok {
			t.Debug("orders socket answered heartbeat with %q", reply.Type)
		}
	})

	t.Run("invalid target fails without affecting other sessions", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		good, err := t.OpenTrackingSocket(id)
		if err != nil {
			t.SkipWithReason("tracking socket endpoint is not available")
		}

		bad, _ := t.Sessions().Open(t.env.Settings.SocketURL(servicedef.TrackingSocketPath("not-a-uuid")))
		// The service either refuses the upgrade, or accepts and then
		// drops the session; both count as a terminal non-open state.
		if bad.State() == harness.SessionOpen {
			bad.AwaitClosed(socketResponseTimeout)
		}
		assert.Contains(t,
			[]harness.SessionState{harness.SessionFailed, harness.SessionClosed},
			bad.State(), "session to invalid target neither failed nor closed")

		assert.Equal(t, harness.SessionOpen, good.State(),
			"valid session disturbed by a failing one")
	})

	t.Run("reconnect after close", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		first, err := t.OpenTrackingSocket(id)
		if err != nil {
			t.SkipWithReason("tracking socket endpoint is not available")
		}
		require.NoError(t, first.Send(servicedef.FrameTypePing,
			map[string]interface{}{"timestamp": time.Now().Unix()}))
		first.Close()
		require.True(t, first.AwaitClosed(socketResponseTimeout))

		harness.Settle(context.Background(), 500*time.Millisecond)

		second, err := t.OpenTrackingSocket(id)
		require.NoError(t, err, "reconnect to the same target refused")
		require.Equal(t, harness.SessionOpen, second.State())
		require.NoError(t, second.Send(servicedef.FrameTypePing,
			map[string]interface{}{"timestamp": time.Now().Unix()}))
	})

	t.Run("malformed frames do not take the service down", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		session, err := t.OpenTrackingSocket(id)
		if err != nil {
			t.SkipWithReason("tracking socket endpoint is not available")
		}

		// The service may answer with an error frame, ignore the frame,
		// or close the session; it only must not crash.
		if err := session.SendText("invalid json"); err != nil {
			t.Debug("session already refused writes: %v", err)
		}
		_ = session.SendText(`{"invalid": "structure"}`)
		harness.Settle(context.Background(), 500*time.Millisecond)

		outcome, err := t.api.Health(context.Background())
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "service unhealthy after bad frames: %s", outcome)

		if session.State() == harness.SessionOpen {
			require.NoError(t, session.Send(servicedef.FrameTypePing,
				map[string]interface{}{"timestamp": time.Now().Unix()}))
		}
	})

	t.Run("concurrent sessions", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		count := t.env.Settings.Workers
		if count < 5 {
			count = 5
		}
		targets := make([]string, count)
		for i := range targets {
			targets[i] = t.env.Settings.SocketURL(servicedef.TrackingSocketPath(id))
		}
		sessions := t.Sessions().OpenMany(targets)
		require.Len(t, sessions, count)

		open := 0
		for _, s := range sessions {
			if s.State() == harness.SessionOpen {
				open++
			}
		}
		if open == 0 {
			t.SkipWithReason("tracking socket endpoint is not available")
		}
		assert.GreaterOrEqual(t, open, 1, "stress open yielded no usable sessions")
		t.Debug("%d of %d concurrent sessions open", open, len(sessions))
	})
}
