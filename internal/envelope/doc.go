// Package envelope defines the uniform JSON error bodies the gateway
// returns for downstream failures and unmatched routes, so that the web
// client can rely on a single shape regardless of which service failed.
package envelope
