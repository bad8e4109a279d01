package domain

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/rivo/uniseg"
)

// SubscriberName is a display name that has passed validation.
type SubscriberName string

// EmailAddress is an email address that has passed syntactic validation.
// No DNS/MX check is ever performed.
type EmailAddress string

// maxNameGraphemes bounds the name length in user-perceived characters
// (grapheme clusters), not bytes or runes. A name made of 256 combining
// sequences or emoji is still acceptable.
const maxNameGraphemes = 256

// forbiddenNameRunes are rejected because they could inject markup or
// path segments in downstream rendering and addressing contexts.
const forbiddenNameRunes = `/()"<>\{}`

// NewSubscriberName validates a raw display name.
func NewSubscriberName(raw string) (SubscriberName, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if uniseg.GraphemeClusterCount(raw) > maxNameGraphemes {
		return "", fmt.Errorf("%w: name must not exceed %d characters", ErrInvalidInput, maxNameGraphemes)
	}
	if strings.ContainsAny(raw, forbiddenNameRunes) {
		return "", fmt.Errorf("%w: name must not contain any of %s", ErrInvalidInput, forbiddenNameRunes)
	}
	return SubscriberName(raw), nil
}

// NewEmailAddress validates a raw email address syntactically.
func NewEmailAddress(raw string) (EmailAddress, error) {
	if !validEmail(raw) {
		return "", fmt.Errorf("%w: %q is not a valid email address", ErrInvalidInput, raw)
	}
	return EmailAddress(raw), nil
}

// validEmail performs basic syntactic email validation: a single @,
// bounded local part and domain, and a dotted domain. The shape checks
// run first because mail.ParseAddress alone accepts bare domains and
// display-name forms we do not want stored.
func validEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	if email != strings.TrimSpace(email) {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, dom := parts[0], parts[1]
	if len(local) == 0 || len(local) > 64 {
		return false
	}
	if len(dom) == 0 || len(dom) > 253 {
		return false
	}
	if !strings.Contains(dom, ".") {
		return false
	}
	if strings.HasPrefix(dom, ".") || strings.HasSuffix(dom, ".") {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms like `Jane <jane@example.com>`.
	return addr.Address == email
}

func (n SubscriberName) String() string { return string(n) }
func (e EmailAddress) String() string { return string(e) }
