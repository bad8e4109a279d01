package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus enumerates the states a subscriber can be in.
// The transition is one-way: pending → confirmed, never back.
type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusConfirmed SubscriptionStatus = "confirmed"
)

// ParseStatus converts the text form persisted in the database into a
// SubscriptionStatus. The raw string never travels past the store boundary.
func ParseStatus(raw string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(raw) {
	case StatusPending:
		return StatusPending, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	default:
		return "", fmt.Errorf("unknown subscription status %q", raw)
	}
}

// Subscriber represents a single mailing-list member.
type Subscriber struct {
	ID           uuid.UUID          `json:"id"`
	Email        EmailAddress       `json:"email"`
	Name         SubscriberName     `json:"name"`
	Status       SubscriptionStatus `json:"status"`
	SubscribedAt time.Time          `json:"subscribed_at"`
}

// TokenLength is the exact length of every confirmation token.
const TokenLength = 26
