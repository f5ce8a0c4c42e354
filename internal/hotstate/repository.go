package hotstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

// Repository stores the feed-derived entities as JSON under their key namespaces and TTLs.
type Repository struct {
	store Store
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Store() Store {
	return r.store
}

func (r *Repository) PutTripDelay(ctx context.Context, d models.TripDelay) error {
	return r.putJSON(ctx, TripDelayKey(d.TripID), d, TTLTripDelay)
}

// TripDelays batch-reads delays and keys the result by trip id. Trips without a live entry are absent.
func (r *Repository) TripDelays(ctx context.Context, tripIDs []string) (map[string]models.TripDelay, error) {
	out := make(map[string]models.TripDelay, len(tripIDs))
	if len(tripIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(tripIDs))
	for i, id := range tripIDs {
		keys[i] = TripDelayKey(id)
	}

	raw, err := r.store.MultiGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		b, ok := raw[key]
		if !ok {
			continue
		}
		var d models.TripDelay
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		out[tripIDs[i]] = d
	}
	return out, nil
}

func (r *Repository) PutVehiclePosition(ctx context.Context, v models.VehiclePosition) error {
	return r.putJSON(ctx, VehiclePositionKey(v.VehicleID), v, TTLVehiclePosition)
}

func (r *Repository) VehiclePosition(ctx context.Context, vehicleID string) (models.VehiclePosition, bool, error) {
	var v models.VehiclePosition
	ok, err := r.getJSON(ctx, VehiclePositionKey(vehicleID), &v)
	return v, ok, err
}

func (r *Repository) PutServiceAlert(ctx context.Context, a models.ServiceAlert) error {
	return r.putJSON(ctx, ServiceAlertKey(a.AlertID), a, TTLServiceAlert)
}

// PutActiveAlertIDs replaces the alert index with the ids seen in one sync.
func (r *Repository) PutActiveAlertIDs(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return r.putJSON(ctx, ActiveAlertsKey, ids, TTLServiceAlert)
}

func (r *Repository) ActiveAlertIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := r.getJSON(ctx, ActiveAlertsKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ActiveAlerts resolves the alert index. Ids whose own entry has expired are skipped.
func (r *Repository) ActiveAlerts(ctx context.Context) ([]models.ServiceAlert, error) {
	ids, err := r.ActiveAlertIDs(ctx)
	if err != nil {
		return nil, err
	}
	alerts := make([]models.ServiceAlert, 0, len(ids))
	if len(ids) == 0 {
		return alerts, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ServiceAlertKey(id)
	}
	raw, err := r.store.MultiGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		b, ok := raw[key]
		if !ok {
			continue
		}
		var a models.ServiceAlert
		if err := json.Unmarshal(b, &a); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (r *Repository) putJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return r.store.Put(ctx, key, b, ttl)
}

func (r *Repository) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	b, ok, err := r.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}
