// Package processor normalises decoded GTFS-realtime feed messages into the
// entities kept in the hot-state cache. It performs no I/O.
package processor

import (
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

const defaultAlertHeader = "Service Alert"

// Stats counts entities seen and discarded while normalising one feed.
type Stats struct {
	Entities int
	Skipped  int
}

// TripDelays extracts one delay per trip update. Entities without a trip id are skipped.
func TripDelays(msg *gtfs.FeedMessage, now time.Time) ([]models.TripDelay, Stats) {
	var stats Stats
	observed := now.UnixMilli()
	out := make([]models.TripDelay, 0, len(msg.GetEntity()))

	for _, entity := range msg.GetEntity() {
		stats.Entities++
		tu := entity.GetTripUpdate()
		if entity.GetIsDeleted() || tu.GetTrip().GetTripId() == "" {
			stats.Skipped++
			continue
		}
		out = append(out, models.TripDelay{
			TripID:           tu.GetTrip().GetTripId(),
			DelaySeconds:     DeriveDelay(tu),
			ObservedAtMillis: observed,
		})
	}
	return out, stats
}

// DeriveDelay prefers a non-zero trip-level delay, then the first stop-time update's
// departure delay, then its arrival delay, and otherwise reports zero.
func DeriveDelay(tu *gtfs.TripUpdate) int32 {
	if d := tu.GetDelay(); d != 0 {
		return d
	}
	updates := tu.GetStopTimeUpdate()
	if len(updates) == 0 {
		return 0
	}
	first := updates[0]
	if dep := first.GetDeparture(); dep != nil && dep.Delay != nil {
		return dep.GetDelay()
	}
	if arr := first.GetArrival(); arr != nil && arr.Delay != nil {
		return arr.GetDelay()
	}
	return 0
}

// VehiclePositions extracts positions. Entities without a vehicle id or a position are skipped.
func VehiclePositions(msg *gtfs.FeedMessage, now time.Time) ([]models.VehiclePosition, Stats) {
	var stats Stats
	out := make([]models.VehiclePosition, 0, len(msg.GetEntity()))

	for _, entity := range msg.GetEntity() {
		stats.Entities++
		v := entity.GetVehicle()
		if entity.GetIsDeleted() || v.GetVehicle().GetId() == "" || v.GetPosition() == nil {
			stats.Skipped++
			continue
		}

		pos := v.GetPosition()
		vp := models.VehiclePosition{
			VehicleID:        v.GetVehicle().GetId(),
			TripID:           v.GetTrip().GetTripId(),
			RouteID:          v.GetTrip().GetRouteId(),
			Latitude:         pos.GetLatitude(),
			Longitude:        pos.GetLongitude(),
			Bearing:          pos.Bearing,
			Speed:            pos.Speed,
			ObservedAtMillis: now.UnixMilli(),
		}
		if ts := v.GetTimestamp(); ts > 0 {
			vp.ObservedAtMillis = int64(ts) * 1000
		}
		if v.CurrentStopSequence != nil {
			seq := v.GetCurrentStopSequence()
			vp.CurrentStopSequence = &seq
		}
		if v.CurrentStatus != nil {
			vp.CurrentStatus = MapVehicleStatus(int32(v.GetCurrentStatus()))
		}
		out = append(out, vp)
	}
	return out, stats
}

// ServiceAlerts extracts alerts keyed by entity id.
func ServiceAlerts(msg *gtfs.FeedMessage) ([]models.ServiceAlert, Stats) {
	var stats Stats
	out := make([]models.ServiceAlert, 0, len(msg.GetEntity()))

	for _, entity := range msg.GetEntity() {
		stats.Entities++
		a := entity.GetAlert()
		if entity.GetIsDeleted() || a == nil || entity.GetId() == "" {
			stats.Skipped++
			continue
		}

		alert := models.ServiceAlert{
			AlertID:         entity.GetId(),
			HeaderText:      translatedText(a.GetHeaderText()),
			DescriptionText: translatedText(a.GetDescriptionText()),
		}
		if alert.HeaderText == "" {
			alert.HeaderText = defaultAlertHeader
		}
		if a.Cause != nil {
			alert.Cause = MapCause(int32(a.GetCause()))
		}
		if a.Effect != nil {
			alert.Effect = MapEffect(int32(a.GetEffect()))
		}
		for _, ie := range a.GetInformedEntity() {
			if id := ie.GetRouteId(); id != "" {
				alert.AffectedRouteIDs = append(alert.AffectedRouteIDs, id)
			}
			if id := ie.GetStopId(); id != "" {
				alert.AffectedStopIDs = append(alert.AffectedStopIDs, id)
			}
		}
		if periods := a.GetActivePeriod(); len(periods) > 0 {
			if periods[0].Start != nil {
				start := periods[0].GetStart()
				alert.ActivePeriodStart = &start
			}
			if periods[0].End != nil {
				end := periods[0].GetEnd()
				alert.ActivePeriodEnd = &end
			}
		}
		out = append(out, alert)
	}
	return out, stats
}

// translatedText prefers the English translation and falls back to the first one.
func translatedText(ts *gtfs.TranslatedString) string {
	translations := ts.GetTranslation()
	if len(translations) == 0 {
		return ""
	}
	for _, t := range translations {
		if strings.EqualFold(t.GetLanguage(), "en") {
			return t.GetText()
		}
	}
	return translations[0].GetText()
}
