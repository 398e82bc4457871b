// Package client is the browser-side request layer of the product,
// expressed as a Go client for the gateway. It layers four resilience
// mechanisms over plain HTTP:
//
//   - generic retry with exponential backoff for transport-level failures
//   - single-flight access-token refresh on 401, replayed at most once
//   - a one-shot delayed retry for 503 responses
//   - a bounded-concurrency batch executor for independent request sets
//
// HTTP error responses are classified into user-facing messages, always
// preferring a server-supplied detail when present.
package client
