package models

type DepartureStatus string

const (
	StatusOnTime  DepartureStatus = "ON_TIME"
	StatusDelayed DepartureStatus = "DELAYED"
	StatusEarly   DepartureStatus = "EARLY"
	// StatusCancelled is part of the wire vocabulary but no real-time signal produces it yet.
	StatusCancelled DepartureStatus = "CANCELLED"
)

// Departure is computed on every reconciliation and never stored.
type Departure struct {
	TripID             string          `json:"tripId"`
	RouteID            string          `json:"routeId"`
	RouteShortName     string          `json:"routeShortName"`
	TripHeadsign       string          `json:"tripHeadsign"`
	ScheduledDeparture string          `json:"scheduledDeparture"`
	RealtimeDeparture  *string         `json:"realtimeDeparture"`
	DelaySeconds       int32           `json:"delaySeconds"`
	Status             DepartureStatus `json:"status"`
	StopSequence       int             `json:"stopSequence"`
}

type DeparturesResult struct {
	StopID     string      `json:"stopId"`
	Departures []Departure `json:"departures"`
	Timestamp  int64       `json:"timestamp"`
	Hash       string      `json:"hash"`
}
