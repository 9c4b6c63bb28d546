package notifications

import (
	"context"

	"github.com/dmitrymomot/paykit/pkg/webhook"
)

// WebhookDeliverer forwards notifications to the host application as signed
// JSON webhooks. The notification id is the delivery id.
type WebhookDeliverer struct {
	sender   *webhook.Sender
	endpoint string
}

func NewWebhookDeliverer(sender *webhook.Sender, endpoint string) *WebhookDeliverer {
	return &WebhookDeliverer{sender: sender, endpoint: endpoint}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, n Notification) error {
	return d.sender.Send(ctx, d.endpoint, n.ID.String(), n)
}
