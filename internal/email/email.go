// Package email delivers escalation mail for critical monitor cycles.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v3"
)

// Message is one outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Validate reports the first missing field.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return errors.New("email: no recipients")
	}
	for _, to := range m.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("email: bad recipient %q", to)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("email: empty subject")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("email: empty body")
	}
	return nil
}

// Sender sends a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Resend sends mail through the Resend API.
type Resend struct {
	client *resend.Client
	from   string
}

// NewResend returns a Resend sender. from must be verified in Resend.
func NewResend(apiKey, from string) *Resend {
	return &Resend{client: resend.NewClient(apiKey), from: from}
}

// Send validates msg and posts it. ctx is only checked before the call.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if _, err := r.client.Emails.Send(r.request(msg)); err != nil {
		return fmt.Errorf("resend: send email: %w", err)
	}
	return nil
}

func (r *Resend) request(msg Message) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    r.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
}
