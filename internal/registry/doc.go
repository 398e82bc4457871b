// Package registry holds the static mapping of logical service names to
// their base URLs and route prefixes. The registry is loaded once at startup
// and is immutable afterwards.
package registry
