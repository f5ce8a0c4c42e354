// Package stream turns repeated departure reconciliation into a push channel
// that only emits when the departure board actually changes.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type DeparturesSource interface {
	GetDepartures(ctx context.Context, stopID string, limit, windowSeconds int) ([]models.Departure, error)
}

type Metrics interface {
	StreamOpened()
	StreamClosed()
	StreamEvent(event string)
}

// ChangePublisher receives every board that was pushed to a client.
type ChangePublisher interface {
	PublishStopDepartures(ctx context.Context, result models.DeparturesResult) error
}

type Config struct {
	PollInterval   time.Duration
	MaxDuration    time.Duration
	ReconnectDelay time.Duration
	Limit          int
	WindowSeconds  int
}

type ConnectedPayload struct {
	StopID    string `json:"stopId"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorPayload struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

type ReconnectPayload struct {
	Reason  string `json:"reason"`
	RetryMs int64  `json:"retryMs"`
}

type Service struct {
	source    DeparturesSource
	cfg       Config
	logger    logger.Logger
	metrics   Metrics
	publisher ChangePublisher

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

type Option func(*Service)

func WithMetrics(m Metrics) Option                 { return func(s *Service) { s.metrics = m } }
func WithChangePublisher(p ChangePublisher) Option { return func(s *Service) { s.publisher = p } }

func NewService(source DeparturesSource, cfg Config, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		source: source,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		wait:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run streams departures for stopID until ctx is cancelled or the configured
// maximum duration elapses. A failed reconciliation becomes an error event and
// the loop carries on. On timeout a reconnect hint is sent and Run returns nil;
// on cancellation it returns the context error.
func (s *Service) Run(ctx context.Context, stopID string, emit Emitter) error {
	log := s.logger.With("stop_id", stopID, "conn_id", uuid.NewString())
	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	start := s.now()
	log.Debug("Stream opened")

	if err := s.emit(emit, Event{Name: EventConnected, Data: ConnectedPayload{
		StopID:    stopID,
		Timestamp: start.UnixMilli(),
	}}); err != nil {
		return err
	}

	var (
		lastHash string
		seq      uint64
	)
poll:
	for {
		if err := ctx.Err(); err != nil {
			log.Debug("Stream cancelled by client", "events", seq)
			return err
		}
		elapsed := s.now().Sub(start)
		if elapsed >= s.cfg.MaxDuration {
			break
		}

		// A single reconciliation never runs past the connection's duration cap.
		iterCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxDuration-elapsed)
		deps, err := s.source.GetDepartures(iterCtx, stopID, s.cfg.Limit, s.cfg.WindowSeconds)
		capped := errors.Is(iterCtx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && capped:
			log.Warn("Reconciliation still running at max duration", "error", err)
			break poll
		case err != nil:
			log.Warn("Stream iteration failed", "error", err)
			if err := s.emit(emit, Event{Name: EventError, Data: ErrorPayload{
				Error:     err.Error(),
				Timestamp: s.now().UnixMilli(),
			}}); err != nil {
				return err
			}
		default:
			result := NewResult(stopID, deps, s.now().UnixMilli())
			if result.Hash != lastHash {
				seq++
				if err := s.emit(emit, Event{Name: EventDepartures, ID: seq, Data: result}); err != nil {
					return err
				}
				lastHash = result.Hash
				s.publish(ctx, log, result)
			}
		}

		remaining := s.cfg.MaxDuration - s.now().Sub(start)
		if remaining <= 0 {
			break
		}
		if err := s.wait(ctx, minDuration(s.cfg.PollInterval, remaining)); err != nil {
			log.Debug("Stream cancelled by client", "events", seq)
			return err
		}
	}

	log.Debug("Stream reached max duration", "events", seq)
	return s.emit(emit, Event{Name: EventReconnect, Data: ReconnectPayload{
		Reason:  "timeout",
		RetryMs: s.cfg.ReconnectDelay.Milliseconds(),
	}})
}

func (s *Service) emit(emit Emitter, ev Event) error {
	if err := emit.Emit(ev); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.StreamEvent(ev.Name)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, log logger.Logger, result models.DeparturesResult) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStopDepartures(ctx, result); err != nil {
		log.Warn("Failed to publish departures change", "error", err)
	}
}

// IsDisconnect reports whether a Run error only means the client went away.
func IsDisconnect(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
