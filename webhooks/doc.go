// Package webhooks ingests end-of-call events from the voice platform.
//
// A delivery is verified against the raw body, decoded from a separate
// copy, joined to its session and then either enqueued for scoring or
// recorded as not scorable. Enqueue failures are retried with doubling
// backoff before the session is marked scoring_enqueue_failed.
package webhooks
