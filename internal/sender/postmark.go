package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/mailmule/internal/config"
	"github.com/ignite/mailmule/internal/domain"
)

// PostmarkSender sends email through the Postmark transactional API.
type PostmarkSender struct {
	baseURL     string
	serverToken string
	fromEmail   string
	fromName    string
	httpClient  *http.Client
}

// NewPostmarkSender creates a Postmark sender from configuration.
func NewPostmarkSender(cfg config.SenderConfig) *PostmarkSender {
	return &PostmarkSender{
		baseURL:     cfg.Postmark.BaseURL,
		serverToken: cfg.Postmark.ServerToken,
		fromEmail:   cfg.FromEmail,
		fromName:    cfg.FromName,
		httpClient:  &http.Client{Timeout: cfg.Postmark.Timeout()},
	}
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
	HtmlBody string `json:"HtmlBody"`
}

// Send posts a single email to the Postmark /email endpoint. Any non-2xx
// status is a send failure.
func (s *PostmarkSender) Send(ctx context.Context, to domain.EmailAddress, subject, textBody, htmlBody string) error {
	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	payload := postmarkEmail{
		From:     from,
		To:       to.String(),
		Subject:  subject,
		TextBody: textBody,
		HtmlBody: htmlBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", s.serverToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("postmark API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}
