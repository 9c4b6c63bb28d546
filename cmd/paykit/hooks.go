package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/paykit/pkg/notifications"
	"github.com/dmitrymomot/paykit/pkg/subscription"
)

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// seatCounter counts tenant seats with a host-provided query.
func seatCounter(db queryRower, query string) subscription.SeatCounter {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		var n int
		if err := db.QueryRow(ctx, query, tenantID).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	}
}

// recipientResolver looks up a user's email with a host-provided query.
func recipientResolver(db queryRower, query string) notifications.RecipientResolver {
	return func(ctx context.Context, userID uuid.UUID) (string, error) {
		var addr *string
		err := db.QueryRow(ctx, query, userID).Scan(&addr)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && (addr == nil || *addr == "")) {
			return "", notifications.ErrNoRecipient
		}
		if err != nil {
			return "", err
		}
		return *addr, nil
	}
}
