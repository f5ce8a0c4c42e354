package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

// Subjects derives every subject name from a single prefix.
type Subjects struct {
	Prefix string
}

func (s Subjects) Vehicles() string { return s.Prefix + ".vehicles" }
func (s Subjects) Alerts() string   { return s.Prefix + ".alerts" }
func (s Subjects) Sync() string     { return s.Prefix + ".sync" }

func (s Subjects) StopDepartures(stopID string) string {
	return fmt.Sprintf("%s.stop.%s", s.Prefix, subjectToken(stopID))
}

type NATSPublisher struct {
	nc       *nats.Conn
	subjects Subjects
	logger   logger.Logger
	metrics  PublisherMetrics
}

func Connect(url, prefix string, log logger.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("nz-transit-app"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, subjects: Subjects{Prefix: prefix}, logger: log, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) Conn() *nats.Conn { return p.nc }

func (p *NATSPublisher) Subjects() Subjects { return p.subjects }

func (p *NATSPublisher) PublishVehicles(_ context.Context, positions []models.VehiclePosition) error {
	return p.publish(p.subjects.Vehicles(), positions)
}

func (p *NATSPublisher) PublishAlerts(_ context.Context, alerts []models.ServiceAlert) error {
	return p.publish(p.subjects.Alerts(), alerts)
}

// PublishStopDepartures announces a changed departure board for one stop.
func (p *NATSPublisher) PublishStopDepartures(_ context.Context, result models.DeparturesResult) error {
	return p.publish(p.subjects.StopDepartures(result.StopID), result)
}

func (p *NATSPublisher) publish(subject string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", subject, err)
	}
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
