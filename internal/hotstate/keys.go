package hotstate

import "time"

const (
	TTLTripDelay       = 60 * time.Second
	TTLVehiclePosition = 60 * time.Second
	TTLServiceAlert    = 300 * time.Second

	// ActiveAlertsKey lists the alert ids seen by the latest alerts sync.
	ActiveAlertsKey = "alerts:active"
)

func TripDelayKey(tripID string) string {
	return "delay:" + tripID
}

func VehiclePositionKey(vehicleID string) string {
	return "vehicle:" + vehicleID
}

func ServiceAlertKey(alertID string) string {
	return "alert:" + alertID
}
