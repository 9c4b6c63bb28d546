// Package clientip resolves the caller address of HTTP requests and
// restricts endpoints to known networks.
//
// Forwarding headers are spoofable, so they are read only behind a trusted
// proxy. Payment providers publish the ranges their webhooks come from;
// Allowlist enforces them on the webhook routes.
package clientip
