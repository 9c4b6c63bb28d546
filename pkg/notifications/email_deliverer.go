package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/email"
)

// RecipientResolver returns the email address of a user.
type RecipientResolver func(ctx context.Context, userID uuid.UUID) (string, error)

// ErrNoRecipient is returned by a RecipientResolver for users without an address.
var ErrNoRecipient = errors.New("no email recipient for user")

var emailLayout = template.Must(template.New("notification").Parse(`<!doctype html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
{{- if .Details}}
<ul>
{{- range .Details}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>`))

// EmailDeliverer sends notifications as emails.
type EmailDeliverer struct {
	sender    email.Sender
	recipient RecipientResolver
}

func NewEmailDeliverer(sender email.Sender, recipient RecipientResolver) *EmailDeliverer {
	return &EmailDeliverer{sender: sender, recipient: recipient}
}

func (d *EmailDeliverer) Deliver(ctx context.Context, n Notification) error {
	to, err := d.recipient(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, ErrNoRecipient) {
			return nil
		}
		return fmt.Errorf("resolve recipient for user %s: %w", n.UserID, err)
	}

	var body bytes.Buffer
	if err := emailLayout.Execute(&body, struct {
		Title   string
		Message string
		Details []string
	}{n.Title, n.Message, details(n.Data)}); err != nil {
		return fmt.Errorf("render notification email: %w", err)
	}

	return d.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  n.Title,
		BodyHTML: body.String(),
		BodyText: n.Message,
		Tag:      n.Kind,
	})
}
