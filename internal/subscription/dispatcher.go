package subscription

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/osteele/liquid"

	"github.com/ignite/mailmule/internal/config"
	"github.com/ignite/mailmule/internal/domain"
	"github.com/ignite/mailmule/internal/sender"
)

// Default confirmation email bodies. Overridable via config template paths.
const (
	defaultTextTemplate = `Hi {{ name }},

Welcome to our mailing list! Please confirm your subscription by visiting:

{{ confirm_url }}

If you did not subscribe, you can safely ignore this email.
`

	defaultHTMLTemplate = `<html>
<body>
<p>Hi {{ name }},</p>
<p>Welcome to our mailing list! Please confirm your subscription by clicking the link below:</p>
<p><a href="{{ confirm_url }}">Confirm subscription</a></p>
<p>If you did not subscribe, you can safely ignore this email.</p>
</body>
</html>
`
)

// Dispatcher builds and sends the confirmation email for a subscriber.
type Dispatcher struct {
	sender  sender.EmailSender
	baseURL string
	subject string
	text    *liquid.Template
	html    *liquid.Template
}

// NewDispatcher creates a confirmation dispatcher. Templates are parsed once
// at construction; a broken template file is a startup error, not a per-send
// surprise.
func NewDispatcher(es sender.EmailSender, cfg config.ConfirmationConfig) (*Dispatcher, error) {
	engine := liquid.NewEngine()

	textSrc, err := templateSource(cfg.TextTemplatePath, defaultTextTemplate)
	if err != nil {
		return nil, err
	}
	htmlSrc, err := templateSource(cfg.HTMLTemplatePath, defaultHTMLTemplate)
	if err != nil {
		return nil, err
	}

	text, err := engine.ParseTemplate([]byte(textSrc))
	if err != nil {
		return nil, fmt.Errorf("parsing text template: %w", err)
	}
	html, err := engine.ParseTemplate([]byte(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML template: %w", err)
	}

	return &Dispatcher{
		sender:  es,
		baseURL: cfg.BaseURL,
		subject: cfg.Subject,
		text:    text,
		html:    html,
	}, nil
}

func templateSource(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", path, err)
	}
	return string(data), nil
}

// SendConfirmation renders the confirmation email for the subscriber and
// sends it once. No retry: a failed send is reported to the caller, who can
// resubmit Subscribe to trigger the resend path.
func (d *Dispatcher) SendConfirmation(ctx context.Context, name domain.SubscriberName, email domain.EmailAddress, token string) error {
	confirmURL, err := d.confirmURL(token)
	if err != nil {
		return err
	}

	bindings := liquid.Bindings{
		"name":        name.String(),
		"confirm_url": confirmURL,
	}

	textBody, err := d.text.Render(bindings)
	if err != nil {
		return fmt.Errorf("rendering text body: %w", err)
	}
	htmlBody, err := d.html.Render(bindings)
	if err != nil {
		return fmt.Errorf("rendering HTML body: %w", err)
	}

	if err := d.sender.Send(ctx, email, d.subject, string(textBody), string(htmlBody)); err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}
	return nil
}

// confirmURL attaches the token as a query parameter to the configured base
// URL, preserving any query parameters already present.
func (d *Dispatcher) confirmURL(token string) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing confirmation base URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
