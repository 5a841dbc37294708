package contracttests

import (
	"context"
	"net/http"
	"regexp"

	"github.com/fleetops/driver-contract-tests/apiclient"
	"github.com/fleetops/driver-contract-tests/fixtures"
	"github.com/fleetops/driver-contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var phonePattern = regexp.MustCompile(`^\+7\d{10}$`)
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func DoDriverAPITests(t *T) {
	t.Run("create returns a valid driver", func(t *T) {
		driver, id := t.MustCreateDriver(nil)

		assert.Regexp(t, uuidPattern, id)
		phone, _ := driver["phone"].(string)
		assert.Regexp(t, phonePattern, phone)
		assert.Equal(t, servicedef.StatusRegistered, driver["status"])
		assert.NotEmpty(t, driver["created_at"])
		assert.NotEmpty(t, driver["updated_at"])
		if rating, ok := driver["current_rating"].(float64); assert.True(t, ok, "current_rating missing") {
			assert.GreaterOrEqual(t, rating, 0.0)
			assert.LessOrEqual(t, rating, 5.0)
		}
		if trips, ok := driver["total_trips"].(float64); assert.True(t, ok, "total_trips missing") {
			assert.GreaterOrEqual(t, trips, 0.0)
		}
	})

	t.Run("create rejects duplicate phone", func(t *T) {
		driver, _ := t.MustCreateDriver(nil)

		outcome, id, err := t.api.CreateDriver(context.Background(),
			t.env.Factory.BuildDriver(fixtures.Overrides{"phone": driver["phone"]}))
		require.NoError(t, err)
		if id != "" {
			t.TrackDriver(id)
		}
		assert.Equalf(t, http.StatusConflict, outcome.Status, "expected conflict, got %s", outcome)
	})

	t.Run("create rejects invalid payloads", func(t *T) {
		badInputs := map[string]fixtures.Overrides{
			"malformed phone":       {"phone": "12345"},
			"malformed email":       {"email": "not-an-email"},
			"missing first name":    {"first_name": nil},
			"missing license":       {"license_number": nil},
			"short passport series": {"passport_series": "12"},
		}
		for name, overrides := range badInputs {
			overrides := overrides
			t.Run(name, func(t *T) {
				outcome, id, err := t.api.CreateDriver(context.Background(),
					t.env.Factory.BuildDriver(overrides))
				require.NoError(t, err)
				if id != "" {
					t.TrackDriver(id)
				}
				assert.Equalf(t, http.StatusBadRequest, outcome.Status,
					"expected validation rejection, got %s", outcome)
			})
		}
	})

	t.Run("get returns the created driver", func(t *T) {
		driver, id := t.MustCreateDriver(nil)

		outcome, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)

		var fetched map[string]interface{}
		require.NoError(t, outcome.DecodeJSON(&fetched))
		assert.Equal(t, id, fetched["id"])
		assert.Equal(t, driver["phone"], fetched["phone"])
		assert.Equal(t, driver["email"], fetched["email"])
	})

	t.Run("get of unknown driver returns not found", func(t *T) {
		outcome, err := t.api.GetDriver(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNotFound, outcome.Status, "unexpected %s", outcome)
	})

	t.Run("status transition is persisted", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		outcome, err := t.api.UpdateDriverStatus(context.Background(), id, servicedef.StatusPendingVerification)
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "status update rejected: %s", outcome)

		check, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, check.Status)
		assert.Equal(t, servicedef.StatusPendingVerification, check.BodyField("status"))
	})

	t.Run("status update rejects unknown status value", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		outcome, err := t.api.UpdateDriverStatus(context.Background(), id, "warp_speed")
		require.NoError(t, err)
		assert.Equalf(t, http.StatusBadRequest, outcome.Status, "unexpected %s", outcome)
	})

	t.Run("update changes only the submitted fields", func(t *T) {
		driver, id := t.MustCreateDriver(nil)

		outcome, err := t.api.UpdateDriver(context.Background(), id, map[string]interface{}{
			"first_name": "Updated",
			"email":      t.env.Factory.BuildDriver(nil)["email"],
		})
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "update rejected: %s", outcome)

		var updated map[string]interface{}
		require.NoError(t, outcome.DecodeJSON(&updated))
		assert.Equal(t, "Updated", updated["first_name"])
		assert.NotEqual(t, driver["email"], updated["email"])
		assert.Equal(t, driver["phone"], updated["phone"], "phone must be untouched")
		assert.Equal(t, driver["last_name"], updated["last_name"], "last name must be untouched")

		check, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, check.Status)
		assert.Equal(t, "Updated", check.BodyField("first_name"))
	})

	t.Run("update of unknown driver returns not found", func(t *T) {
		outcome, err := t.api.UpdateDriver(context.Background(),
			"00000000-0000-0000-0000-000000000000",
			map[string]interface{}{"first_name": "Nobody"})
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNotFound, outcome.Status, "unexpected %s", outcome)
	})

	t.Run("list pages drivers in an envelope", func(t *T) {
		for i := 0; i < 3; i++ {
			t.MustCreateDriver(nil)
		}

		page1 := mustListDrivers(t, apiclient.DriverListQuery{Limit: 2, Offset: 0})
		assert.LessOrEqual(t, len(page1.Drivers), 2)
		assert.Equal(t, 2, page1.Limit)
		assert.Equal(t, 0, page1.Offset)
		assert.GreaterOrEqual(t, page1.Total, 3, "the drivers just created must be counted")
		assert.True(t, page1.HasMore, "more than one page must remain")

		page2 := mustListDrivers(t, apiclient.DriverListQuery{Limit: 2, Offset: 2})
		assert.Equal(t, 2, page2.Offset)

		seen := map[string]bool{}
		for _, d := range page1.Drivers {
			seen[d["id"].(string)] = true
		}
		for _, d := range page2.Drivers {
			assert.Falsef(t, seen[d["id"].(string)], "driver %v appears on both pages", d["id"])
		}
	})

	t.Run("list filters by status and rating", func(t *T) {
		t.MustCreateDriver(nil)

		byStatus := mustListDrivers(t, apiclient.DriverListQuery{Status: servicedef.StatusRegistered})
		for _, d := range byStatus.Drivers {
			assert.Equal(t, servicedef.StatusRegistered, d["status"])
		}

		low, high := 0.0, 1.0
		byRating := mustListDrivers(t, apiclient.DriverListQuery{MinRating: &low, MaxRating: &high})
		for _, d := range byRating.Drivers {
			if rating, ok := d["current_rating"].(float64); assert.True(t, ok) {
				assert.GreaterOrEqual(t, rating, low)
				assert.LessOrEqual(t, rating, high)
			}
		}
	})

	t.Run("delete removes the driver", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		outcome, err := t.api.DeleteDriver(context.Background(), id)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNoContent, outcome.Status, "unexpected %s", outcome)

		check, err := t.api.GetDriver(context.Background(), id)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNotFound, check.Status, "driver still present after delete: %s", check)
	})

	t.Run("active list excludes fresh registrations", func(t *T) {
		_, id := t.MustCreateDriver(nil)

		outcome, err := t.api.ListActiveDrivers(context.Background())
		require.NoError(t, err)
		require.Equalf(t, http.StatusOK, outcome.Status, "unexpected %s", outcome)

		var listed []map[string]interface{}
		if err := outcome.DecodeJSON(&listed); err != nil {
			// Some deployments wrap the list in an envelope object.
			var envelope struct {
				Drivers []map[string]interface{} `json:"drivers"`
			}
			require.NoError(t, outcome.DecodeJSON(&envelope))
			listed = envelope.Drivers
		}
		for _, d := range listed {
			assert.NotEqual(t, id, d["id"], "freshly registered driver listed as active")
		}
	})
}

type driverListPage struct {
	Drivers []map[string]interface{} `json:"drivers"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
	HasMore bool                     `json:"has_more"`
}

func mustListDrivers(t *T, query apiclient.DriverListQuery) driverListPage {
	outcome, err := t.api.ListDrivers(context.Background(), query)
	require.NoError(t, err)
	require.Equalf(t, http.StatusOK, outcome.Status, "list rejected: %s", outcome)

	var page driverListPage
	require.NoError(t, outcome.DecodeJSON(&page))
	return page
}
