// Package healthmonitor implements periodic health probing of all
// registered services. It fans one bounded-timeout probe out per service,
// records results into the shared status table, and keeps running for the
// lifetime of the process regardless of individual probe failures.
package healthmonitor
