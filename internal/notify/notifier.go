package notify

import "context"

// Notifier delivers a human-readable event message to a user. Delivery is
// best-effort: the ledger engine logs and swallows every error returned
// here, so an implementation failing forever must never break a mutation.
type Notifier interface {
	Send(ctx context.Context, userID, message string) error
}

// Nop discards every message. Used when no notification channel is wired.
type Nop struct{}

func (Nop) Send(ctx context.Context, userID, message string) error { return nil }
