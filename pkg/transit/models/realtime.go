package models

// TripDelay is the most recent delay observed for a trip. Positive values are late.
type TripDelay struct {
	TripID           string `json:"tripId"`
	DelaySeconds     int32  `json:"delaySeconds"`
	ObservedAtMillis int64  `json:"timestamp"`
}

type VehicleStatus string

const (
	VehicleIncomingAt  VehicleStatus = "INCOMING_AT"
	VehicleStoppedAt   VehicleStatus = "STOPPED_AT"
	VehicleInTransitTo VehicleStatus = "IN_TRANSIT_TO"
	VehicleUnknown     VehicleStatus = "UNKNOWN"
)

type VehiclePosition struct {
	VehicleID           string        `json:"vehicleId"`
	TripID              string        `json:"tripId"`
	RouteID             string        `json:"routeId"`
	Latitude            float32       `json:"latitude"`
	Longitude           float32       `json:"longitude"`
	Bearing             *float32      `json:"bearing,omitempty"`
	Speed               *float32      `json:"speed,omitempty"` // metres per second
	ObservedAtMillis    int64         `json:"timestamp"`
	CurrentStopSequence *uint32       `json:"currentStopSequence,omitempty"`
	CurrentStatus       VehicleStatus `json:"currentStatus,omitempty"`
}

type AlertCause string

const (
	CauseUnknownCause     AlertCause = "UNKNOWN_CAUSE"
	CauseOtherCause       AlertCause = "OTHER_CAUSE"
	CauseTechnicalProblem AlertCause = "TECHNICAL_PROBLEM"
	CauseStrike           AlertCause = "STRIKE"
	CauseDemonstration    AlertCause = "DEMONSTRATION"
	CauseAccident         AlertCause = "ACCIDENT"
	CauseHoliday          AlertCause = "HOLIDAY"
	CauseWeather          AlertCause = "WEATHER"
	CauseMaintenance      AlertCause = "MAINTENANCE"
	CauseConstruction     AlertCause = "CONSTRUCTION"
	CausePoliceActivity   AlertCause = "POLICE_ACTIVITY"
	CauseMedicalEmergency AlertCause = "MEDICAL_EMERGENCY"
	// CauseUnmapped marks a provider code with no entry in the lookup table.
	CauseUnmapped AlertCause = "UNKNOWN"
)

type AlertEffect string

const (
	EffectNoService         AlertEffect = "NO_SERVICE"
	EffectReducedService    AlertEffect = "REDUCED_SERVICE"
	EffectSignificantDelays AlertEffect = "SIGNIFICANT_DELAYS"
	EffectDetour            AlertEffect = "DETOUR"
	EffectAdditionalService AlertEffect = "ADDITIONAL_SERVICE"
	EffectModifiedService   AlertEffect = "MODIFIED_SERVICE"
	EffectOtherEffect       AlertEffect = "OTHER_EFFECT"
	EffectUnknownEffect     AlertEffect = "UNKNOWN_EFFECT"
	EffectStopMoved         AlertEffect = "STOP_MOVED"
	EffectUnmapped          AlertEffect = "UNKNOWN"
)

type ServiceAlert struct {
	AlertID           string      `json:"alertId"`
	HeaderText        string      `json:"headerText"`
	DescriptionText   string      `json:"descriptionText"`
	Cause             AlertCause  `json:"cause,omitempty"`
	Effect            AlertEffect `json:"effect,omitempty"`
	AffectedRouteIDs  []string    `json:"affectedRoutes,omitempty"`
	AffectedStopIDs   []string    `json:"affectedStops,omitempty"`
	ActivePeriodStart *uint64     `json:"activePeriodStart,omitempty"`
	ActivePeriodEnd   *uint64     `json:"activePeriodEnd,omitempty"`
}

// SyncResult summarises one composite synchronisation of the three feeds.
type SyncResult struct {
	Success             bool     `json:"success"`
	DelayCount          int      `json:"tripUpdates"`
	VehicleCount        int      `json:"vehiclePositions"`
	AlertCount          int      `json:"serviceAlerts"`
	Errors              []string `json:"errors"`
	TotalDurationMillis int64    `json:"duration"`
}
