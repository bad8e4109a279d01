package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/mailmule/internal/domain"
)

// uniqueViolation is the Postgres error code raised when an insert hits
// a unique constraint.
const uniqueViolation = "23505"

// Store provides persisted subscriber and token operations on Postgres.
// Every method is atomic with respect to concurrent callers.
type Store struct {
	db *sql.DB
}

// NewStore creates a subscriber store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByEmail returns the subscriber for an email, or nil when absent.
func (s *Store) FindByEmail(ctx context.Context, email domain.EmailAddress) (*domain.Subscriber, error) {
	query := `SELECT id, email, name, status, subscribed_at
		FROM subscribers WHERE email = $1`

	var (
		sub       domain.Subscriber
		rawStatus string
		rawEmail  string
		rawName   string
	)
	err := s.db.QueryRowContext(ctx, query, email.String()).Scan(
		&sub.ID, &rawEmail, &rawName, &rawStatus, &sub.SubscribedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying subscriber by email: %w", err)
	}

	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s: %w", sub.ID, err)
	}
	sub.Email = domain.EmailAddress(rawEmail)
	sub.Name = domain.SubscriberName(rawName)
	sub.Status = status
	return &sub, nil
}

// CreateSubscriberWithToken inserts a new pending subscriber and its first
// confirmation token in one all-or-nothing transaction. Returns
// domain.ErrConflict when another creator already won the race for this email.
func (s *Store) CreateSubscriberWithToken(ctx context.Context, name domain.SubscriberName, email domain.EmailAddress, token string) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, name, status, subscribed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, email.String(), name.String(), string(domain.StatusPending), now)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, domain.ErrConflict
		}
		return uuid.Nil, fmt.Errorf("insert subscriber: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscription_tokens (token, subscriber_id) VALUES ($1, $2)`,
		token, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert confirmation token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, domain.ErrConflict
		}
		return uuid.Nil, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// RotateToken replaces the live token value for a subscriber. The upsert
// keeps the at-most-one-live-token invariant even if the previous token
// row was consumed concurrently.
func (s *Store) RotateToken(ctx context.Context, subscriberID uuid.UUID, newToken string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscription_tokens (token, subscriber_id) VALUES ($1, $2)
		ON CONFLICT (subscriber_id) DO UPDATE SET token = EXCLUDED.token`,
		newToken, subscriberID)
	if err != nil {
		return fmt.Errorf("rotate confirmation token: %w", err)
	}
	return nil
}

// FindSubscriberIDByToken resolves a confirmation token to its subscriber.
// Returns domain.ErrNotFound for unknown (or already consumed) tokens.
func (s *Store) FindSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT subscriber_id FROM subscription_tokens WHERE token = $1`, token).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, domain.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("querying token: %w", err)
	}
	return id, nil
}

// MarkConfirmed flips the subscriber to confirmed and consumes the token in
// the same transaction. Calling it again for an already-confirmed subscriber
// is a no-op, not an error.
func (s *Store) MarkConfirmed(ctx context.Context, subscriberID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE subscribers SET status = $1 WHERE id = $2`,
		string(domain.StatusConfirmed), subscriberID)
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM subscription_tokens WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return fmt.Errorf("consume confirmation token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListConfirmedEmails returns the raw stored email strings of all confirmed
// subscribers. Raw because stored data is not guaranteed to still satisfy
// current validation rules; callers must re-validate.
func (s *Store) ListConfirmedEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email FROM subscribers WHERE status = $1`, string(domain.StatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("querying confirmed subscribers: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scanning subscriber email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
