// Package api exposes the subscription lifecycle and the publish fan-out
// over HTTP. Status-code mapping lives here; the core packages only speak
// the domain error taxonomy.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ignite/mailmule/internal/domain"
	"github.com/ignite/mailmule/internal/pkg/httputil"
	"github.com/ignite/mailmule/internal/publish"
	"github.com/ignite/mailmule/internal/subscription"
)

// SubscriptionService is the subscribe/confirm surface consumed by the
// handlers. *subscription.Service satisfies it.
type SubscriptionService interface {
	Subscribe(ctx context.Context, name, email string) (subscription.SubscribeOutcome, error)
	Confirm(ctx context.Context, token string) error
}

// Broadcaster is the publish surface consumed by the handlers.
// *publish.Fanout satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, title, textBody, htmlBody string) (publish.Summary, error)
}

// RateLimiter throttles subscribe requests per client. May be nil (no
// limiting configured).
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	subscriptions SubscriptionService
	broadcaster   Broadcaster
	limiter       RateLimiter
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(subscriptions SubscriptionService, broadcaster Broadcaster, limiter RateLimiter) *Handlers {
	return &Handlers{subscriptions: subscriptions, broadcaster: broadcaster, limiter: limiter}
}

type messageResponse struct {
	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message"`
}

// HandleSubscribe accepts a form-urlencoded (name, email) pair.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(r.Context(), clientIP(r)) {
		httputil.TooManyRequests(w, "too many subscribe attempts, try again later")
		return
	}

	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "invalid form data")
		return
	}
	name := r.PostFormValue("name")
	email := r.PostFormValue("email")

	outcome, err := h.subscriptions.Subscribe(r.Context(), name, email)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, messageResponse{
		Outcome: string(outcome),
		Message: subscribeMessage(outcome),
	})
}

func subscribeMessage(outcome subscription.SubscribeOutcome) string {
	switch outcome {
	case subscription.OutcomeAlreadyConfirmed:
		return "You are already subscribed and confirmed."
	case subscription.OutcomeConfirmationResent:
		return "Confirmation email resent. Please check your inbox."
	default:
		return "Confirmation email sent. Please check your inbox."
	}
}

// HandleConfirm resolves the token query parameter of a confirmation link.
func (h *Handlers) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.BadRequest(w, "missing token")
		return
	}

	if err := h.subscriptions.Confirm(r.Context(), token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httputil.NotFound(w, "unknown confirmation token")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, messageResponse{Outcome: "confirmed", Message: "Subscription confirmed."})
}

type publishRequest struct {
	Title   string `json:"title"`
	Content struct {
		Text string `json:"text"`
		HTML string `json:"html"`
	} `json:"content"`
}

type publishResponse struct {
	Message string `json:"message"`
	Valid   int    `json:"valid"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
}

// HandlePublish broadcasts content to all confirmed subscribers. Partial
// failures are reported in the summary, not as an HTTP error.
func (h *Handlers) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.BadRequest(w, "title is required")
		return
	}

	summary, err := h.broadcaster.Broadcast(r.Context(), req.Title, req.Content.Text, req.Content.HTML)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, publishResponse{
		Message: fmt.Sprintf("Dispatched content to %d/%d subscribers.", summary.Dispatched(), summary.Total),
		Valid:   summary.Valid,
		Failed:  summary.Failed,
		Total:   summary.Total,
	})
}

// HandleHealth reports process liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// clientIP extracts the client address for rate-limit keying. RealIP
// middleware has already resolved any forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
