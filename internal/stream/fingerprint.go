package stream

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type fingerprintEntry struct {
	TripID       string                 `json:"tripId"`
	DelaySeconds int32                  `json:"delaySeconds"`
	Status       models.DepartureStatus `json:"status"`
}

// Fingerprint digests the (tripId, delaySeconds, status) sequence in order.
// Other departure fields do not affect it.
func Fingerprint(deps []models.Departure) string {
	entries := make([]fingerprintEntry, 0, len(deps))
	for _, d := range deps {
		entries = append(entries, fingerprintEntry{TripID: d.TripID, DelaySeconds: d.DelaySeconds, Status: d.Status})
	}
	// marshalling plain strings and ints cannot fail
	b, _ := json.Marshal(entries)
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])[:8]
}

// NewResult packages a departure list with its fingerprint.
func NewResult(stopID string, deps []models.Departure, timestampMillis int64) models.DeparturesResult {
	if deps == nil {
		deps = []models.Departure{}
	}
	return models.DeparturesResult{
		StopID:     stopID,
		Departures: deps,
		Timestamp:  timestampMillis,
		Hash:       Fingerprint(deps),
	}
}
