package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paykit/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{SendTo: "owner@example.com", Subject: "Subscription cancelled", BodyHTML: "<p>bye</p>"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*email.SendEmailParams)
	}{
		{"missing recipient", func(p *email.SendEmailParams) { p.SendTo = "" }},
		{"bad recipient", func(p *email.SendEmailParams) { p.SendTo = "not-an-email" }},
		{"missing subject", func(p *email.SendEmailParams) { p.Subject = "" }},
		{"long subject", func(p *email.SendEmailParams) { p.Subject = strings.Repeat("x", 201) }},
		{"missing body", func(p *email.SendEmailParams) { p.BodyHTML = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tt.mutate(&p)
			require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
		})
	}
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	cfg := email.Config{
		PostmarkServerToken: "server-token",
		SenderEmail:         "billing@example.com",
		SupportEmail:        "support@example.com",
	}
	client, err := email.NewPostmarkClient(cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)

	noToken := cfg
	noToken.PostmarkServerToken = ""
	_, err = email.NewPostmarkClient(noToken)
	require.ErrorIs(t, err, email.ErrInvalidConfig)

	badSender := cfg
	badSender.SenderEmail = "billing"
	_, err = email.NewPostmarkClient(badSender)
	require.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestPostmarkClient_RejectsInvalidParams(t *testing.T) {
	t.Parallel()

	client, err := email.NewPostmarkClient(email.Config{
		PostmarkServerToken: "server-token",
		SenderEmail:         "billing@example.com",
		SupportEmail:        "support@example.com",
	})
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), email.SendEmailParams{SendTo: "nope"})
	require.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "emails")
	sender := email.NewDevSender(dir)

	err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "owner@example.com",
		Subject:  "Payment failed",
		BodyHTML: "<p>update your card</p>",
		Tag:      "subscription payment/failed",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var htmlFile, jsonFile string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".html":
			htmlFile = e.Name()
		case ".json":
			jsonFile = e.Name()
		}
	}
	assert.Contains(t, htmlFile, "subscription_paymentfailed")

	body, err := os.ReadFile(filepath.Join(dir, htmlFile))
	require.NoError(t, err)
	assert.Equal(t, "<p>update your card</p>", string(body))

	raw, err := os.ReadFile(filepath.Join(dir, jsonFile))
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "owner@example.com", meta["send_to"])
	assert.Equal(t, "Payment failed", meta["subject"])

	require.ErrorIs(t, sender.SendEmail(context.Background(), email.SendEmailParams{}), email.ErrInvalidParams)
}
