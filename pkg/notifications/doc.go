// Package notifications records subscription lifecycle notices for users and
// forwards them to delivery channels.
//
// Manager implements subscription.Notifier: each notice becomes a stored
// Notification with a human readable title and message, then goes to a
// Deliverer. EmailDeliverer renders an HTML email and hands it to an
// email.Sender, usually the Postmark client. MemoryStorage keeps a bounded
// recent history per user.
//
//	mgr := notifications.NewManager(
//		notifications.NewMemoryStorage(),
//		notifications.NewEmailDeliverer(postmark, lookupEmail),
//	)
//	svc := subscription.NewSubscriptionService(..., subscription.WithNotifier(mgr))
package notifications
