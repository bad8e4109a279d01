// Package subscription implements the double opt-in subscription lifecycle:
// pending subscribers, confirmation-token issuance and rotation, and the
// pending → confirmed state machine.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/mailmule/internal/domain"
	"github.com/ignite/mailmule/internal/pkg/logger"
	"github.com/ignite/mailmule/internal/token"
)

// SubscriberStore is the persistence capability the service needs.
// *Store satisfies it; tests use an in-memory double.
type SubscriberStore interface {
	FindByEmail(ctx context.Context, email domain.EmailAddress) (*domain.Subscriber, error)
	CreateSubscriberWithToken(ctx context.Context, name domain.SubscriberName, email domain.EmailAddress, token string) (uuid.UUID, error)
	RotateToken(ctx context.Context, subscriberID uuid.UUID, newToken string) error
	FindSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error)
	MarkConfirmed(ctx context.Context, subscriberID uuid.UUID) error
}

// ConfirmationDispatcher sends the confirmation email for a subscriber.
type ConfirmationDispatcher interface {
	SendConfirmation(ctx context.Context, name domain.SubscriberName, email domain.EmailAddress, token string) error
}

// SubscribeOutcome tells the caller what a Subscribe call actually did.
type SubscribeOutcome string

const (
	// OutcomeAlreadyConfirmed: the email is already confirmed; nothing was
	// written and no email was sent.
	OutcomeAlreadyConfirmed SubscribeOutcome = "already_confirmed"
	// OutcomeConfirmationSent: a new pending subscriber was created and a
	// confirmation email dispatched.
	OutcomeConfirmationSent SubscribeOutcome = "confirmation_sent"
	// OutcomeConfirmationResent: the email was already pending; the token
	// was rotated and a fresh confirmation email dispatched.
	OutcomeConfirmationResent SubscribeOutcome = "confirmation_resent"
)

// Service is the subscription state machine. Per email the states are
// unknown → pending → confirmed, with confirmed terminal.
type Service struct {
	store      SubscriberStore
	tokens     token.Generator
	dispatcher ConfirmationDispatcher
}

// NewService wires the subscription service.
func NewService(store SubscriberStore, tokens token.Generator, dispatcher ConfirmationDispatcher) *Service {
	return &Service{store: store, tokens: tokens, dispatcher: dispatcher}
}

// Subscribe handles a subscribe request for a raw (name, email) pair.
// Validation runs before any persistence or network call.
func (s *Service) Subscribe(ctx context.Context, rawName, rawEmail string) (SubscribeOutcome, error) {
	name, err := domain.NewSubscriberName(rawName)
	if err != nil {
		return "", err
	}
	email, err := domain.NewEmailAddress(rawEmail)
	if err != nil {
		return "", err
	}

	sub, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("looking up subscriber: %w", err)
	}

	switch {
	case sub != nil && sub.Status == domain.StatusConfirmed:
		// Resubscribing after confirming must not churn tokens or emails.
		return OutcomeAlreadyConfirmed, nil

	case sub != nil:
		return s.resendConfirmation(ctx, sub)

	default:
		return s.createSubscriber(ctx, name, email)
	}
}

// createSubscriber handles the unknown-email path. The confirmation email is
// deliberately sent after the transaction commits: if the send fails, the
// pending row and token persist and a retried Subscribe lands on the resend
// path instead of leaving an orphaned transaction.
func (s *Service) createSubscriber(ctx context.Context, name domain.SubscriberName, email domain.EmailAddress) (SubscribeOutcome, error) {
	tok, err := s.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}

	id, err := s.store.CreateSubscriberWithToken(ctx, name, email, tok)
	if errors.Is(err, domain.ErrConflict) {
		// Lost a creation race: exactly one creator wins per email. Re-resolve
		// via lookup; the winner's row is now visible.
		logger.Info("subscribe race lost, re-resolving", "email", email.String())
		sub, lookupErr := s.store.FindByEmail(ctx, email)
		if lookupErr != nil {
			return "", fmt.Errorf("re-resolving after conflict: %w", lookupErr)
		}
		if sub == nil {
			return "", fmt.Errorf("re-resolving after conflict: subscriber vanished: %w", domain.ErrConflict)
		}
		if sub.Status == domain.StatusConfirmed {
			return OutcomeAlreadyConfirmed, nil
		}
		return s.resendConfirmation(ctx, sub)
	}
	if err != nil {
		return "", fmt.Errorf("creating subscriber: %w", err)
	}

	logger.Info("subscriber created", "subscriber_id", id.String(), "email", email.String())

	if err := s.dispatcher.SendConfirmation(ctx, name, email, tok); err != nil {
		return "", err
	}
	return OutcomeConfirmationSent, nil
}

// resendConfirmation handles a pending subscriber subscribing again: a fresh
// token always replaces the stale one, invalidating any previously issued link.
func (s *Service) resendConfirmation(ctx context.Context, sub *domain.Subscriber) (SubscribeOutcome, error) {
	tok, err := s.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}

	if err := s.store.RotateToken(ctx, sub.ID, tok); err != nil {
		return "", fmt.Errorf("rotating confirmation token: %w", err)
	}

	logger.Info("confirmation token rotated", "subscriber_id", sub.ID.String())

	if err := s.dispatcher.SendConfirmation(ctx, sub.Name, sub.Email, tok); err != nil {
		return "", err
	}
	return OutcomeConfirmationResent, nil
}

// Confirm resolves a confirmation token and flips its subscriber to
// confirmed, consuming the token. Unknown and already-consumed tokens both
// return domain.ErrNotFound with no state change.
func (s *Service) Confirm(ctx context.Context, tok string) error {
	id, err := s.store.FindSubscriberIDByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("resolving confirmation token: %w", err)
	}

	if err := s.store.MarkConfirmed(ctx, id); err != nil {
		return fmt.Errorf("confirming subscriber: %w", err)
	}

	logger.Info("subscriber confirmed", "subscriber_id", id.String())
	return nil
}
