// Package email sends transactional emails.
//
// PostmarkClient delivers through github.com/mrz1836/postmark. DevSender
// writes each email to a directory, for local runs without a Postmark token.
// Both validate SendEmailParams before doing anything.
package email
