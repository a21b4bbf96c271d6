package bot

import (
	"context"

	"pockettodo/internal/clock"
	"pockettodo/internal/reminder"
	kit "pockettodo/internal/transport"
)

// Delivery sends due reminders as chat messages with snooze buttons.
type Delivery struct {
	ad    kit.Adapter
	cls   kit.ErrorClassifier
	clock clock.Clock
}

var _ reminder.Transport = (*Delivery)(nil)

// NewDelivery uses the adapter's own error classification when it has one.
func NewDelivery(ad kit.Adapter, c clock.Clock) *Delivery {
	cls, _ := ad.(kit.ErrorClassifier)
	return &Delivery{ad: ad, cls: cls, clock: c}
}

func (d *Delivery) Deliver(ctx context.Context, n reminder.Notice) (reminder.Outcome, error) {
	msg := noticeMessage(n, d.clock.Now())
	if _, err := msg.Send(ctx, d.ad, kit.ChatTarget{ChatID: n.ChatID}); err != nil {
		if d.cls != nil && d.cls.IsPermanent(err) {
			return reminder.OutcomePermanentlyFailed, err
		}
		return reminder.OutcomeRetry, err
	}
	return reminder.OutcomeDelivered, nil
}
