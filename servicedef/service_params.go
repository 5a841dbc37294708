package servicedef

// REST paths exposed by the driver service. Path parameters are filled in
// by the helper functions below rather than by string concatenation at
// call sites, so a typo in a path shows up in exactly one place.
const (
	HealthPath        = "/health"
	DriversPath       = "/api/v1/drivers"
	ActiveDriversPath = "/api/v1/drivers/active"
	NearbyDriversPath = "/api/v1/locations/nearby"
)

func DriverPath(driverID string) string {
	return DriversPath + "/" + driverID
}

func DriverStatusPath(driverID string) string {
	return DriverPath(driverID) + "/status"
}

func LocationsPath(driverID string) string {
	return DriverPath(driverID) + "/locations"
}

func LocationBatchPath(driverID string) string {
	return LocationsPath(driverID) + "/batch"
}

func CurrentLocationPath(driverID string) string {
	return LocationsPath(driverID) + "/current"
}

func LocationHistoryPath(driverID string) string {
	return LocationsPath(driverID) + "/history"
}

// WebSocket paths. Both endpoints speak JSON text frames with a "type"
// discriminator.
func TrackingSocketPath(driverID string) string {
	return "/ws/tracking/" + driverID
}

func OrdersSocketPath(driverID string) string {
	return "/ws/orders/" + driverID
}
