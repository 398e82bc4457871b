// Package status maintains the shared table of per-service availability.
// The table is written by both the health monitor (periodic probes) and the
// proxy (live traffic) and read by the status endpoints. Writes are
// last-write-wins by completion time; the table is advisory and does not
// drive routing decisions, so no stronger ordering is imposed.
package status
