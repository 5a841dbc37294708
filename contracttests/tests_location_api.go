package contracttests

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetops/driver-contract-tests/apiclient"
	"github.com/fleetops/driver-contract-tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DoLocationAPITests(t *T) {
	t.Run("single ping is accepted", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		location := t.env.Factory.BuildLocation(nil)

		outcome, err := t.api.SubmitLocation(context.Background(), id, location)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "location rejected: %s", outcome)

		var stored map[string]interface{}
		require.NoError(t, outcome.DecodeJSON(&stored))
		assert.Equal(t, id, stored["driver_id"])
		assert.Equal(t, location["latitude"], stored["latitude"])
		assert.Equal(t, location["longitude"], stored["longitude"])
		assert.NotEmpty(t, stored["recorded_at"])
	})

	t.Run("ping validation", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		badInputs := map[string]fixtures.Overrides{
			"latitude above range":  {"latitude": 91.0},
			"latitude below range":  {"latitude": -91.0},
			"longitude above range": {"longitude": 181.0},
			"longitude below range": {"longitude": -181.0},
			"negative accuracy":     {"accuracy": -5.0},
			"bearing out of range":  {"bearing": 400.0},
			"missing latitude":      {"latitude": nil},
		}
		for name, overrides := range badInputs {
			overrides := overrides
			t.Run(name, func(t *T) {
				outcome, err := t.api.SubmitLocation(context.Background(), id,
					t.env.Factory.BuildLocation(overrides))
				require.NoError(t, err)
				assert.Equalf(t, http.StatusBadRequest, outcome.Status,
					"expected validation rejection, got %s", outcome)
			})
		}
	})

	t.Run("ping for unknown driver returns not found", func(t *T) {
		outcome, err := t.api.SubmitLocation(context.Background(),
			"00000000-0000-0000-0000-000000000000", t.env.Factory.BuildLocation(nil))
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNotFound, outcome.Status, "unexpected %s", outcome)
	})

	t.Run("batch submit", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		locations := t.env.Factory.BuildLocationBatch(3)

		outcome, err := t.api.SubmitLocationBatch(context.Background(), id, locations)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusOK, outcome.Status, "batch rejected: %s", outcome)
	})

	t.Run("batch validation", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		t.Run("empty batch", func(t *T) {
			outcome, err := t.api.SubmitLocationBatch(context.Background(), id, nil)
			require.NoError(t, err)
			assert.Equalf(t, http.StatusBadRequest, outcome.Status, "unexpected %s", outcome)
		})
		t.Run("batch containing invalid ping", func(t *T) {
			batch := t.env.Factory.BuildLocationBatch(2)
			batch = append(batch, t.env.Factory.BuildLocation(fixtures.Overrides{"latitude": 200.0}))
			outcome, err := t.api.SubmitLocationBatch(context.Background(), id, batch)
			require.NoError(t, err)
			assert.Equalf(t, http.StatusBadRequest, outcome.Status, "unexpected %s", outcome)
		})
	})

	t.Run("current location reflects the latest ping", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		location := t.env.Factory.BuildLocation(nil)
		submit, err := t.api.SubmitLocation(context.Background(), id, location)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, submit.Status)

		outcome, err := t.api.CurrentLocation(context.Background(), id)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)
		assert.Equal(t, location["latitude"], outcome.BodyField("latitude"))
		assert.Equal(t, location["longitude"], outcome.BodyField("longitude"))
	})

	t.Run("current location of driver with no pings returns not found", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		outcome, err := t.api.CurrentLocation(context.Background(), id)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNotFound, outcome.Status, "unexpected %s", outcome)
	})

	t.Run("history returns submitted pings in order", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		locations := t.env.Factory.BuildLocationBatch(3)
		submit, err := t.api.SubmitLocationBatch(context.Background(), id, locations)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, submit.Status)

		outcome, err := t.api.LocationHistory(context.Background(), id, "", "")
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)

		history := decodeLocationList(t, outcome)
		assert.GreaterOrEqual(t, len(history), 3, "history shorter than the submitted batch")
	})

	t.Run("history honors time filters", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		submit, err := t.api.SubmitLocation(context.Background(), id, t.env.Factory.BuildLocation(nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, submit.Status)

		// A window wholly in the past must exclude the ping just recorded.
		from := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
		to := time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339)
		outcome, err := t.api.LocationHistory(context.Background(), id, from, to)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)
		assert.Empty(t, decodeLocationList(t, outcome))
	})

	t.Run("history of driver with no pings is empty", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		outcome, err := t.api.LocationHistory(context.Background(), id, "", "")
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)
		assert.Empty(t, decodeLocationList(t, outcome))
	})

	t.Run("nearby search finds a driver at the probe point", func(t *T) {
		_, id := t.MustCreateDriver(nil)
		location := t.env.Factory.BuildLocation(fixtures.Overrides{
			"latitude":  55.7558,
			"longitude": 37.6176,
		})
		submit, err := t.api.SubmitLocation(context.Background(), id, location)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, submit.Status)
		t.Settle()

		outcome, err := t.api.NearbyDrivers(context.Background(), 55.7558, 37.6176, 5000)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)

		found := false
		for _, d := range decodeLocationList(t, outcome) {
			if d["driver_id"] == id || d["id"] == id {
				found = true
			}
		}
		assert.True(t, found, "driver with a fresh ping at the probe point not returned by nearby search")
	})
}

// decodeLocationList accepts either a bare JSON array or an envelope
// object with a list-valued field, which is how the nearby and history
// endpoints differ across deployments.
func decodeLocationList(t *T, outcome apiclient.Outcome) []map[string]interface{} {
	var list []map[string]interface{}
	if err := outcome.DecodeJSON(&list); err == nil {
		return list
	}
	var envelope map[string]interface{}
	require.NoError(t, outcome.DecodeJSON(&envelope))
	for _, v := range envelope {
		if items, ok := v.([]interface{}); ok {
			for _, item := range items {
				if m, ok := item.(map[string]interface{}); ok {
					list = append(list, m)
				}
			}
			return list
		}
	}
	return nil
}
