package models

import (
	"time"
)

type Stop struct {
	StopID        string  `json:"stopId"`
	StopCode      string  `json:"stopCode,omitempty"`
	StopName      string  `json:"stopName"`
	StopLat       float64 `json:"stopLat"`
	StopLon       float64 `json:"stopLon"`
	ParentStation string  `json:"parentStation,omitempty"`
	PlatformCode  string  `json:"platformCode,omitempty"`
}

// ScheduledStopTime is a stop_times row joined to its trip and route.
// Times are seconds from midnight of the service day and may exceed 86400.
type ScheduledStopTime struct {
	TripID                    string
	StopID                    string
	StopSequence              int
	ScheduledArrivalSeconds   int
	ScheduledDepartureSeconds int
	RouteID                   string
	RouteShortName            string
	RouteLongName             string
	TripHeadsign              string
	StopHeadsign              string
	ServiceID                 string
}

// Headsign returns the stop-level headsign, falling back to the trip's.
func (st ScheduledStopTime) Headsign() string {
	if st.StopHeadsign != "" {
		return st.StopHeadsign
	}
	return st.TripHeadsign
}

type Calendar struct {
	ServiceID string
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool
	Saturday  bool
	Sunday    bool
	StartDate time.Time
	EndDate   time.Time
}

const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

type CalendarDate struct {
	ServiceID     string
	Date          time.Time
	ExceptionType int
}
