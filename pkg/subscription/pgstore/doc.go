// Package pgstore implements the subscription stores on PostgreSQL via pgx.
//
// Update is guarded by the version column: a stale Subscription.Version yields
// subscription.ErrConcurrentUpdate. A partial unique index keeps at most one
// non-ended subscription per tenant and product.
package pgstore
