package servicedef

// Bus subjects the driver service publishes on. JSON payloads carry an
// "event_type" discriminator and a "timestamp" field.
const (
	SubjectDriverRegistered          = "driver.registered"
	SubjectDriverVerified            = "driver.verified"
	SubjectDriverStatusChanged       = "driver.status.changed"
	SubjectDriverAvailabilityChanged = "driver.availability.changed"
	SubjectDriverShiftStarted        = "driver.shift.started"
	SubjectDriverShiftEnded          = "driver.shift.ended"
	SubjectDriverLocationUpdated     = "driver.location.updated"
	SubjectDriverRatingUpdated       = "driver.rating.updated"
	SubjectDriverPerformanceAlert    = "driver.performance.alert"
)

// Bus subjects the driver service consumes. The harness publishes on these
// to exercise the consumption side.
const (
	SubjectOrderAssigned              = "order.assigned"
	SubjectOrderCompleted             = "order.completed"
	SubjectOrderCancelled             = "order.cancelled"
	SubjectPaymentProcessed           = "payment.processed"
	SubjectPaymentFailed              = "payment.failed"
	SubjectVehicleAssigned            = "vehicle.assigned"
	SubjectVehicleMaintenanceRequired = "vehicle.maintenance.required"
	SubjectCustomerRatedDriver        = "customer.rated.driver"
)

// event_type discriminator values used inside bus payloads.
const (
	EventTypeDriverRegistered      = "driver_registered"
	EventTypeDriverStatusChanged   = "driver_status_changed"
	EventTypeDriverLocationUpdated = "driver_location_updated"
	EventTypeOrderAssigned         = "order_assigned"
	EventTypeOrderCompleted        = "order_completed"
	EventTypePaymentProcessed      = "payment_processed"
	EventTypeCustomerRatedDriver   = "customer_rated_driver"
)

// WebSocket frame "type" discriminator values.
const (
	FrameTypePing           = "ping"
	FrameTypePong           = "pong"
	FrameTypeAck            = "ack"
	FrameTypeConnected      = "connected"
	FrameTypeHeartbeat      = "heartbeat"
	FrameTypeLocationUpdate = "location_update"
)

// Driver lifecycle status values. A freshly created driver is in
// StatusRegistered.
const (
	StatusRegistered          = "registered"
	StatusPendingVerification = "pending_verification"
	StatusVerified            = "verified"
	StatusAvailable           = "available"
	StatusBusy                = "busy"
	StatusOffline             = "offline"
	StatusSuspended           = "suspended"
)
