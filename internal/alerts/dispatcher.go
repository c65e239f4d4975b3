package alerts

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/logging"
)

// Publisher delivers one alert to the external notification collaborator.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Dispatcher records risk alerts in the outbox and publishes them. Delivery
// is at-least-once: failed publishes stay pending until Redeliver succeeds.
type Dispatcher struct {
	store     *Store
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher. A nil publisher keeps every alert
// pending in the outbox.
func NewDispatcher(store *Store, publisher Publisher, topic string, logger *zap.Logger) *Dispatcher {
	logger = logging.OrNop(logger)
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		topic:     topic,
		logger:    logger.Named("alerts"),
	}
}

// Dispatch persists and publishes an alert. An alert without a trusted
// contact is logged and dropped. Only outbox errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, a RiskAlert) error {
	if strings.TrimSpace(a.TrustedEmail) == "" {
		d.logger.Warn("risk alert has no trusted contact, not sent",
			zap.String("user_id", a.UserID),
			zap.Int("risk_level", a.RiskLevel),
		)
		return nil
	}

	a.MessageExcerpt = excerpt(a.MessageExcerpt)
	a.Topic = d.topic
	a.Delivered = false
	a.Attempts = 0
	if err := d.store.Create(ctx, &a); err != nil {
		return fmt.Errorf("recording risk alert: %w", err)
	}

	d.publish(ctx, a)
	return nil
}

// Redeliver retries every pending alert and returns how many were delivered.
func (d *Dispatcher) Redeliver(ctx context.Context) (int, error) {
	pending, err := d.store.Pending(ctx, 0)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if d.publish(ctx, a) {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) publish(ctx context.Context, a RiskAlert) bool {
	if d.publisher == nil {
		d.logger.Warn("no alert publisher configured, alert left pending", zap.String("alert_id", a.ID))
		return false
	}

	err := d.publisher.Publish(ctx, Message{Topic: a.Topic, Alert: a})
	if rerr := d.store.RecordAttempt(ctx, a.ID, err == nil); rerr != nil {
		d.logger.Error("recording alert attempt", zap.String("alert_id", a.ID), zap.Error(rerr))
	}
	if err != nil {
		d.logger.Error("publishing risk alert, will retry",
			zap.String("alert_id", a.ID),
			zap.String("topic", a.Topic),
			zap.Error(err),
		)
		return false
	}
	d.logger.Info("risk alert published",
		zap.String("alert_id", a.ID),
		zap.String("user_id", a.UserID),
		zap.Int("risk_level", a.RiskLevel),
	)
	return true
}

// excerpt trims s to MaxExcerptRunes runes.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxExcerptRunes {
		return s
	}
	r := []rune(s)
	return string(r[:MaxExcerptRunes]) + "…"
}
