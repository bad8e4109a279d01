package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailmule/internal/domain"
)

// seqTokens hands out deterministic tokens so tests can assert rotation
// without predicting random values.
type seqTokens struct {
	mu sync.Mutex
	n  int
}

func (g *seqTokens) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("token-%024d", g.n), nil
}

type failingTokens struct{}

func (failingTokens) Generate() (string, error) { return "", errors.New("entropy exhausted") }

// fakeStore is an in-memory SubscriberStore double.
type fakeStore struct {
	mu       sync.Mutex
	byEmail  map[string]*domain.Subscriber
	tokens   map[string]uuid.UUID // token -> subscriber
	creates  int
	rotates  int
	conflict bool // force CreateSubscriberWithToken to lose the race once
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byEmail: make(map[string]*domain.Subscriber),
		tokens:  make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) FindByEmail(_ context.Context, email domain.EmailAddress) (*domain.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.byEmail[email.String()]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) CreateSubscriberWithToken(_ context.Context, name domain.SubscriberName, email domain.EmailAddress, tok string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.conflict {
		f.conflict = false
		return uuid.Nil, domain.ErrConflict
	}
	if _, exists := f.byEmail[email.String()]; exists {
		return uuid.Nil, domain.ErrConflict
	}
	id := uuid.New()
	f.byEmail[email.String()] = &domain.Subscriber{
		ID: id, Email: email, Name: name, Status: domain.StatusPending,
	}
	f.tokens[tok] = id
	return id, nil
}

func (f *fakeStore) RotateToken(_ context.Context, subscriberID uuid.UUID, newToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotates++
	for tok, id := range f.tokens {
		if id == subscriberID {
			delete(f.tokens, tok)
		}
	}
	f.tokens[newToken] = subscriberID
	return nil
}

func (f *fakeStore) FindSubscriberIDByToken(_ context.Context, tok string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[tok]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) MarkConfirmed(_ context.Context, subscriberID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.byEmail {
		if sub.ID == subscriberID {
			sub.Status = domain.StatusConfirmed
		}
	}
	for tok, id := range f.tokens {
		if id == subscriberID {
			delete(f.tokens, tok)
		}
	}
	return nil
}

// fakeDispatcher records confirmation sends.
type fakeDispatcher struct {
	mu    sync.Mutex
	sends []string // tokens, in dispatch order
	fail  bool
}

func (f *fakeDispatcher) SendConfirmation(_ context.Context, _ domain.SubscriberName, _ domain.EmailAddress, tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp is on fire")
	}
	f.sends = append(f.sends, tok)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeDispatcher) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	return NewService(store, &seqTokens{}, dispatcher), store, dispatcher
}

func TestSubscribeFreshEmail(t *testing.T) {
	svc, store, dispatcher := newTestService()

	outcome, err := svc.Subscribe(context.Background(), "Jane Doe", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmationSent, outcome)

	sub := store.byEmail["jane@example.com"]
	require.NotNil(t, sub)
	assert.Equal(t, domain.StatusPending, sub.Status)
	assert.Len(t, store.tokens, 1)
	assert.Len(t, dispatcher.sends, 1)
}

func TestSubscribeInvalidInputFailsFast(t *testing.T) {
	svc, store, dispatcher := newTestService()

	_, err := svc.Subscribe(context.Background(), "", "jane@example.com")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = svc.Subscribe(context.Background(), "Jane", "not-an-email")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = svc.Subscribe(context.Background(), "Jane<b>", "jane@example.com")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	assert.Zero(t, store.creates, "no persistence on invalid input")
	assert.Empty(t, dispatcher.sends, "no email on invalid input")
}

func TestSubscribePendingRotatesToken(t *testing.T) {
	svc, store, dispatcher := newTestService()
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "Jane", "jane@example.com")
	require.NoError(t, err)

	outcome, err := svc.Subscribe(ctx, "Jane", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmationResent, outcome)

	// No duplicate row, exactly one live token, two distinct tokens sent.
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.rotates)
	assert.Len(t, store.tokens, 1)
	require.Len(t, dispatcher.sends, 2)
	assert.NotEqual(t, dispatcher.sends[0], dispatcher.sends[1], "strict rotation: tokens must differ")
}

func TestSubscribeConfirmedIsIdempotent(t *testing.T) {
	svc, store, dispatcher := newTestService()
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "Jane", "jane@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, dispatcher.sends[0]))

	outcome, err := svc.Subscribe(ctx, "Jane", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConfirmed, outcome)

	assert.Equal(t, 1, store.creates)
	assert.Zero(t, store.rotates, "no token churn for confirmed subscribers")
	assert.Len(t, dispatcher.sends, 1, "no extra email for confirmed subscribers")
}

func TestSubscribeConflictFallsBackToResend(t *testing.T) {
	svc, store, dispatcher := newTestService()
	ctx := context.Background()

	// Simulate the losing side of a concurrent first-time subscribe: the
	// create fails with Conflict but the winner's pending row is visible
	// on re-lookup.
	winnerID := uuid.New()
	store.byEmail["jane@example.com"] = &domain.Subscriber{
		ID: winnerID, Email: "jane@example.com", Name: "Jane", Status: domain.StatusPending,
	}
	store.conflict = true

	outcome, err := svc.Subscribe(ctx, "Jane", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmationResent, outcome)
	assert.Equal(t, 1, store.rotates)
	assert.Len(t, dispatcher.sends, 1)
}

func TestSubscribeConcurrentFirstTimers(t *testing.T) {
	svc, store, dispatcher := newTestService()

	const racers = 8
	outcomes := make([]SubscribeOutcome, racers)
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Subscribe(context.Background(), "Jane", "jane@example.com")
		}(i)
	}
	wg.Wait()

	// Exactly one racer creates the row; every loser resolves onto the
	// resend path, whether it saw the pending row up front or lost the
	// insert race and re-looked-up.
	sent := 0
	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeConfirmationSent:
			sent++
		case OutcomeConfirmationResent:
		default:
			t.Fatalf("unexpected outcome %q", outcomes[i])
		}
	}
	assert.Equal(t, 1, sent, "exactly one racer wins the creation")
	assert.Len(t, store.byEmail, 1, "one row regardless of interleaving")
	assert.Len(t, store.tokens, 1, "one live token after the dust settles")
	assert.Len(t, dispatcher.sends, racers, "every racer dispatches a confirmation")
}

func TestSubscribeSendFailureKeepsRow(t *testing.T) {
	svc, store, dispatcher := newTestService()
	dispatcher.fail = true

	_, err := svc.Subscribe(context.Background(), "Jane", "jane@example.com")
	require.Error(t, err)

	// The pending row and token survive the failed send; a retried
	// Subscribe lands on the resend path.
	require.NotNil(t, store.byEmail["jane@example.com"])
	assert.Len(t, store.tokens, 1)

	dispatcher.fail = false
	outcome, err := svc.Subscribe(context.Background(), "Jane", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmationResent, outcome)
}

func TestSubscribeTokenGenerationFailure(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, failingTokens{}, &fakeDispatcher{})

	_, err := svc.Subscribe(context.Background(), "Jane", "jane@example.com")
	require.Error(t, err)
	assert.Zero(t, store.creates)
}

func TestConfirmUnknownToken(t *testing.T) {
	svc, store, _ := newTestService()

	err := svc.Confirm(context.Background(), "no-such-token")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, store.byEmail)
}

func TestConfirmTransitionsAndConsumesToken(t *testing.T) {
	svc, store, dispatcher := newTestService()
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "Jane", "jane@example.com")
	require.NoError(t, err)
	tok := dispatcher.sends[0]

	require.NoError(t, svc.Confirm(ctx, tok))
	assert.Equal(t, domain.StatusConfirmed, store.byEmail["jane@example.com"].Status)

	// The token is consumed with the confirmation: re-use is NotFound,
	// and the subscriber stays confirmed.
	err = svc.Confirm(ctx, tok)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.StatusConfirmed, store.byEmail["jane@example.com"].Status)
}
