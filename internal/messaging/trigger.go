package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type SyncRunner interface {
	SyncAll(ctx context.Context) models.SyncResult
}

// SyncTrigger runs a full sync for every request on the sync subject and replies with the result.
type SyncTrigger struct {
	runner SyncRunner
	logger logger.Logger
	sub    *nats.Subscription
}

func NewSyncTrigger(runner SyncRunner, log logger.Logger) *SyncTrigger {
	return &SyncTrigger{runner: runner, logger: log}
}

func (t *SyncTrigger) Subscribe(ctx context.Context, nc *nats.Conn, subject string) error {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		t.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	t.sub = sub
	t.logger.Info("Listening for sync requests", "subject", subject)
	return nil
}

func (t *SyncTrigger) Unsubscribe() error {
	if t.sub == nil {
		return nil
	}
	return t.sub.Unsubscribe()
}

func (t *SyncTrigger) handle(ctx context.Context, msg *nats.Msg) {
	reply, err := t.Run(ctx)
	if err != nil {
		t.logger.Error("Failed to encode sync result", "error", err)
		return
	}
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		t.logger.Warn("Failed to reply to sync request", "error", err)
	}
}

// Run performs one sync and returns the encoded result.
func (t *SyncTrigger) Run(ctx context.Context) ([]byte, error) {
	result := t.runner.SyncAll(ctx)
	return json.Marshal(result)
}
