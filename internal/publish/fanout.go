// Package publish implements the content broadcast fan-out: one independent
// send per confirmed subscriber, with partial-failure accounting.
package publish

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ignite/mailmule/internal/domain"
	"github.com/ignite/mailmule/internal/pkg/logger"
	"github.com/ignite/mailmule/internal/sender"
)

const defaultWorkers = 10

// ConfirmedEmailLister is the slice of the store the fan-out needs.
type ConfirmedEmailLister interface {
	ListConfirmedEmails(ctx context.Context) ([]string, error)
}

// Summary accounts for one broadcast.
//
//	Total  – confirmed rows fetched
//	Valid  – rows whose stored email is still syntactically valid (attempted)
//	Failed – attempted sends that errored
type Summary struct {
	Valid  int `json:"valid"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Dispatched is the number of subscribers that actually received the
// content. Invalid-address skips and send failures both reduce it.
func (s Summary) Dispatched() int { return s.Valid - s.Failed }

// Fanout broadcasts content to every confirmed subscriber through a bounded
// worker pool. Sends are independent and unordered; a failure never aborts
// the batch, and nothing is retried.
type Fanout struct {
	store   ConfirmedEmailLister
	sender  sender.EmailSender
	workers int
}

// NewFanout creates a broadcast fan-out with the given worker-pool size.
func NewFanout(store ConfirmedEmailLister, es sender.EmailSender, workers int) *Fanout {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Fanout{store: store, sender: es, workers: workers}
}

// Broadcast sends (title, textBody, htmlBody) to every confirmed subscriber.
// Stored addresses are re-validated before sending: validation rules may
// have tightened since the row was written, and bad data may have entered
// by other means. Invalid addresses are counted in Total, logged, and
// skipped — they never reach the sender.
//
// Partial failure is not a broadcast-level failure: the only error returned
// is a failure to read the subscriber set.
func (f *Fanout) Broadcast(ctx context.Context, title, textBody, htmlBody string) (Summary, error) {
	stored, err := f.store.ListConfirmedEmails(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing confirmed subscribers: %w", err)
	}

	recipients := make([]domain.EmailAddress, 0, len(stored))
	for _, raw := range stored {
		addr, err := domain.NewEmailAddress(raw)
		if err != nil {
			logger.Warn("skipping subscriber with invalid stored email", "email", raw, "error", err)
			continue
		}
		recipients = append(recipients, addr)
	}

	logger.Info("starting broadcast",
		"title", title, "total", len(stored), "valid", len(recipients), "workers", f.workers)

	var failed int64
	jobs := make(chan domain.EmailAddress)
	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				if err := f.sender.Send(ctx, addr, title, textBody, htmlBody); err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Warn("broadcast send failed", "to", addr.String(), "error", err)
				}
			}
		}()
	}
	for _, addr := range recipients {
		jobs <- addr
	}
	close(jobs)
	wg.Wait()

	summary := Summary{
		Valid:  len(recipients),
		Failed: int(atomic.LoadInt64(&failed)),
		Total:  len(stored),
	}
	logger.Info("broadcast finished",
		"valid", summary.Valid, "failed", summary.Failed, "total", summary.Total)
	return summary, nil
}
