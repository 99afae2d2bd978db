package notify

import (
	"context"
	"errors"
)

// Notifier delivers a short message about a player's referral activity.
type Notifier interface {
	NotifyReferrer(ctx context.Context, referrerID, text string) error
}

type Nop struct{}

func (Nop) NotifyReferrer(context.Context, string, string) error { return nil }

// Multi fans a message out to every channel and reports all failures.
type Multi []Notifier

func (m Multi) NotifyReferrer(ctx context.Context, referrerID, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyReferrer(ctx, referrerID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
