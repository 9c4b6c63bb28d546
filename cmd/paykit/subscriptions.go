package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/paykit/pkg/subscription"
)

// serviceOpener builds the lifecycle service and returns a func that
// releases its connections.
type serviceOpener func(ctx context.Context) (subscription.SubscriptionService, func(), error)

func openSubscriptionService(ctx context.Context) (subscription.SubscriptionService, func(), error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	return a.service, a.close, nil
}

var errConfirmationRequired = errors.New("ending a subscription immediately requires --yes")

func newSubscriptionCmd(open serviceOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscription",
		Aliases: []string{"sub"},
		Short:   "Inspect and manage a single subscription",
	}
	cmd.AddCommand(
		newShowSubscriptionCmd(open),
		newCancelSubscriptionCmd(open),
		newResumeSubscriptionCmd(open),
		newChangePlanCmd(open),
		newApplyDiscountCmd(open),
		newEndNowCmd(open),
	)
	return cmd
}

// withService parses the subscription id, opens the service and runs fn.
func withService(cmd *cobra.Command, open serviceOpener, rawID string, fn func(context.Context, subscription.SubscriptionService, uuid.UUID) (*subscription.Subscription, error)) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid subscription id %q: %w", rawID, err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	sub, err := fn(ctx, svc, id)
	if err != nil {
		return err
	}
	printSubscription(cmd.OutOrStdout(), sub)
	return nil
}

func newShowSubscriptionCmd(open serviceOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, args[0], func(ctx context.Context, svc subscription.SubscriptionService, id uuid.UUID) (*subscription.Subscription, error) {
				return svc.Get(ctx, id)
			})
		},
	}
}

func newCancelSubscriptionCmd(open serviceOpener) *cobra.Command {
	var reason, details string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel at the end of the paid period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, args[0], func(ctx context.Context, svc subscription.SubscriptionService, id uuid.UUID) (*subscription.Subscription, error) {
				return svc.Cancel(ctx, id, reason, details)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	cmd.Flags().StringVar(&details, "details", "", "free-form cancellation details")
	return cmd
}

func newResumeSubscriptionCmd(open serviceOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Discard a pending cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, args[0], func(ctx context.Context, svc subscription.SubscriptionService, id uuid.UUID) (*subscription.Subscription, error) {
				return svc.DiscardCancellation(ctx, id)
			})
		},
	}
}

func newChangePlanCmd(open serviceOpener) *cobra.Command {
	var prorate bool
	cmd := &cobra.Command{
		Use:   "change-plan <id> <plan>",
		Short: "Move an active subscription to another plan of the same product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, args[0], func(ctx context.Context, svc subscription.SubscriptionService, id uuid.UUID) (*subscription.Subscription, error) {
				sub, result, err := svc.ChangePlan(ctx, id, args[1], prorate)
				if err == nil && result != nil && result.Currency != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "charged now: %s %s\n", result.Amount.String(), result.Currency)
				}
				return sub, err
			})
		},
	}
	cmd.Flags().BoolVar(&prorate, "prorate", true, "prorate the price difference for the current period")
	return cmd
}

func newApplyDiscountCmd(open serviceOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "apply-discount <id> <code>",
		Short: "Redeem a discount code for an active subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, args[0], func(ctx context.Context, svc subscription.SubscriptionService, id uuid.UUID) (*subscription.Subscription, error) {
				return svc.ApplyDiscount(ctx, id, args[1])
			})
		},
	}
}

func newEndNowCmd(open serviceOpener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "end-now <id>",
		Short: "End a subscription immediately, without waiting for the period end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errConfirmationRequired
			}
			return withService(cmd, open, args[0], func(ctx context.Context, svc subscription.SubscriptionService, id uuid.UUID) (*subscription.Subscription, error) {
				return svc.EndNow(ctx, id)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm immediate termination")
	return cmd
}

func printSubscription(w io.Writer, sub *subscription.Subscription) {
	fmt.Fprintf(w, "id:       %s\n", sub.ID)
	fmt.Fprintf(w, "status:   %s\n", sub.Status)
	fmt.Fprintf(w, "plan:     %s (%s)\n", sub.PlanSlug, sub.ProductSlug)
	fmt.Fprintf(w, "provider: %s %s\n", sub.ProviderSlug, sub.ProviderSubscriptionID)
	if sub.CurrentPeriodEnd != nil {
		fmt.Fprintf(w, "period:   ends %s\n", sub.CurrentPeriodEnd.UTC().Format(time.RFC3339))
	}
	if sub.EndedAt != nil {
		fmt.Fprintf(w, "ended:    %s\n", sub.EndedAt.UTC().Format(time.RFC3339))
	}
	if sub.Discount != nil {
		fmt.Fprintf(w, "discount: %s\n", sub.Discount.Code)
	}
}
