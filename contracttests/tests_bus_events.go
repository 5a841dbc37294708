package contracttests

import (
	"context"
	"net/http"

	"github.com/fleetops/driver-contract-tests/fixtures"
	"github.com/fleetops/driver-contract-tests/harness"
	"github.com/fleetops/driver-contract-tests/servicedef"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The subscription is always established and flushed before the action
// fires, so an observed event can never predate its cause, and every match
// is filtered by the driver's id since other traffic may share a subject.
func DoBusEventTests(t *T) {
	t.Run("driver registration publishes driver.registered", func(t *T) {
		sub := t.Subscribe(servicedef.SubjectDriverRegistered)

		driver, id := t.MustCreateDriver(nil)

		event := t.RequireEvent(sub, harness.MatchAll(
			harness.MatchEventType(servicedef.EventTypeDriverRegistered),
			harness.MatchField("driver_id", harness.CorrelationKey(id)),
		))
		assert.Equal(t, driver["phone"], event.Field("phone"))
		assert.Equal(t, driver["email"], event.Field("email"))
		assert.Equal(t, driver["license_number"], event.Field("license_number"))
		assert.NotNil(t, event.Field("timestamp"))
	})

	t.Run("status change publishes driver.status.changed", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		sub := t.Subscribe(servicedef.SubjectDriverStatusChanged)

		outcome, err := t.api.UpdateDriverStatus(context.Background(), id, servicedef.StatusPendingVerification)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "status update rejected: %s", outcome)

		event := t.RequireEvent(sub, harness.MatchAll(
			harness.MatchEventType(servicedef.EventTypeDriverStatusChanged),
			harness.MatchField("driver_id", harness.CorrelationKey(id)),
		))
		assert.Equal(t, servicedef.StatusRegistered, event.Field("old_status"))
		assert.Equal(t, servicedef.StatusPendingVerification, event.Field("new_status"))
		assert.NotNil(t, event.Field("timestamp"))
		assert.NotNil(t, event.Field("changed_by"))
	})

	t.Run("location update publishes matching coordinates", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		sub := t.Subscribe(servicedef.SubjectDriverLocationUpdated)

		location := t.env.Factory.BuildLocation(fixtures.Overrides{
			"latitude":  55.70,
			"longitude": 37.62,
		})
		outcome, err := t.api.SubmitLocation(context.Background(), id, location)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "location rejected: %s", outcome)

		event := t.RequireEvent(sub, harness.MatchAll(
			harness.MatchEventType(servicedef.EventTypeDriverLocationUpdated),
			harness.MatchField("driver_id", harness.CorrelationKey(id)),
		))
		coords, ok := event.Field("location").(map[string]interface{})
		require.True(t, ok, "event carries no location object")
		assert.Equal(t, 55.70, coords["latitude"])
		assert.Equal(t, 37.62, coords["longitude"])
		assert.Equal(t, location["speed"], event.Field("speed_kmh"))
		assert.Equal(t, location["bearing"], event.Field("bearing_degrees"))
		assert.Equal(t, location["accuracy"], event.Field("accuracy_meters"))
	})

	t.Run("read-only requests publish nothing", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		sub := t.Subscribe(
			servicedef.SubjectDriverStatusChanged,
			servicedef.SubjectDriverLocationUpdated,
		)

		outcome, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, outcome.Status)

		t.RequireNoEvent(sub, harness.MatchField("driver_id", harness.CorrelationKey(id)))
	})

	t.Run("independent subscriptions do not interfere", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		statusSub := t.Subscribe(servicedef.SubjectDriverStatusChanged)
		locationSub := t.Subscribe(servicedef.SubjectDriverLocationUpdated)

		outcome, err := t.api.SubmitLocation(context.Background(), id, t.env.Factory.BuildLocation(nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, outcome.Status)

		byDriver := harness.MatchField("driver_id", harness.CorrelationKey(id))
		t.RequireEvent(locationSub, byDriver)
		t.RequireNoEvent(statusSub, byDriver)
	})

	// The consumption-side effects below are asserted optionally: the
	// service owner has not confirmed whether consuming these events must
	// change driver state, so absence of the effect is not a failure.

	t.Run("order assignment may mark the driver busy", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		trigger := t.BusTrigger()

		_, err := trigger.Publish(servicedef.SubjectOrderAssigned, servicedef.EventTypeOrderAssigned,
			map[string]interface{}{
				"driver_id":   id,
				"customer_id": uuid.NewString(),
				"pickup_location": map[string]interface{}{
					"latitude": 55.7558, "longitude": 37.6176, "address": "Moscow, Red Square",
				},
				"dropoff_location": map[string]interface{}{
					"latitude": 55.7539, "longitude": 37.6208, "address": "Moscow, Kremlin",
				},
				"estimated_fare":             250.0,
				"estimated_distance_km":      2.5,
				"estimated_duration_minutes": 15,
				"priority":                   1,
			})
		require.NoError(t, err)
		t.Settle()

		outcome, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, outcome.Status)
		if status := outcome.BodyField("status"); status != servicedef.StatusBusy {
			t.Debug("driver status after order assignment: %v (busy transition not confirmed by contract)", status)
		}
	})

	t.Run("order completion may restore availability", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		setBusy, err := t.api.UpdateDriverStatus(context.Background(), id, servicedef.StatusBusy)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, setBusy.Status, "could not set busy status: %s", setBusy)
		trigger := t.BusTrigger()

		_, err = trigger.Publish(servicedef.SubjectOrderCompleted, servicedef.EventTypeOrderCompleted,
			map[string]interface{}{
				"driver_id":          id,
				"customer_id":        uuid.NewString(),
				"actual_fare":        275.0,
				"actual_distance_km": 2.8,
				"duration_minutes":   18,
				"rating":             5,
				"tips":               50.0,
			})
		require.NoError(t, err)
		t.Settle()

		outcome, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, outcome.Status)
		if status := outcome.BodyField("status"); status != servicedef.StatusAvailable {
			t.Debug("driver status after order completion: %v (availability transition not confirmed by contract)", status)
		}
	})

	t.Run("customer rating may update driver rating", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		before, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, before.Status)
		initialRating := before.BodyField("current_rating")
		trigger := t.BusTrigger()

		_, err = trigger.Publish(servicedef.SubjectCustomerRatedDriver, servicedef.EventTypeCustomerRatedDriver,
			map[string]interface{}{
				"rating_id":   uuid.NewString(),
				"driver_id":   id,
				"customer_id": uuid.NewString(),
				"rating":      4,
				"comment":     "Good driver, smooth ride",
				"criteria": map[string]interface{}{
					"cleanliness": 5, "driving": 4, "punctuality": 4,
				},
				"anonymous": false,
			})
		require.NoError(t, err)
		t.Settle()

		after, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, after.Status)
		if after.BodyField("current_rating") == initialRating {
			t.Debug("driver rating unchanged after customer rating (recalculation not confirmed by contract)")
		}
	})

	t.Run("payment processing is consumed without driver-facing events", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		sub := t.Subscribe(
			servicedef.SubjectDriverStatusChanged,
			servicedef.SubjectDriverRatingUpdated,
		)
		trigger := t.BusTrigger()

		_, err := trigger.Publish(servicedef.SubjectPaymentProcessed, servicedef.EventTypePaymentProcessed,
			map[string]interface{}{
				"payment_id":     uuid.NewString(),
				"driver_id":      id,
				"amount":         275.0,
				"commission":     55.0,
				"net_amount":     220.0,
				"payment_method": "card",
				"status":         "completed",
			})
		require.NoError(t, err)

		t.RequireNoEvent(sub, harness.MatchField("driver_id", harness.CorrelationKey(id)))
	})

	t.Run("malformed events do not take the service down", func(t *T) {
		trigger := t.BusTrigger()

		require.NoError(t, trigger.PublishRaw(servicedef.SubjectOrderAssigned,
			[]byte("invalid json")))

		_, err := trigger.Publish(servicedef.SubjectOrderAssigned, servicedef.EventTypeOrderAssigned,
			map[string]interface{}{
				// no driver_id, no pickup coordinates
				"order_id": uuid.NewString(),
			})
		require.NoError(t, err)

		_, err = trigger.Publish(servicedef.SubjectOrderAssigned, servicedef.EventTypeOrderAssigned,
			map[string]interface{}{
				"order_id":         uuid.NewString(),
				"driver_id":        "not-a-uuid",
				"pickup_latitude":  55.7558,
				"pickup_longitude": 37.6173,
			})
		require.NoError(t, err)

		t.Settle()

		outcome, err := t.api.Health(context.Background())
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "service unhealthy after bad events: %s", outcome)

		// A well-formed flow still works end to end.
		sub := t.Subscribe(servicedef.SubjectDriverRegistered)
		_, id := t.MustCreateDriver(nil)
		t.RequireEvent(sub, harness.MatchAll(
			harness.MatchEventType(servicedef.EventTypeDriverRegistered),
			harness.MatchField("driver_id", harness.CorrelationKey(id)),
		))
	})
}
