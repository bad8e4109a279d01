// Package sender defines the outbound email capability and its provider
// implementations. The core is transport-agnostic: everything upstream
// talks to the EmailSender interface only.
package sender

import (
	"context"

	"github.com/ignite/mailmule/internal/domain"
)

// EmailSender delivers a single transactional email. Implementations must
// be safe for concurrent use; they are shared by the subscription service
// and the publish fan-out.
type EmailSender interface {
	Send(ctx context.Context, to domain.EmailAddress, subject, textBody, htmlBody string) error
}
