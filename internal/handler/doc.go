// Package handler wires the gateway's HTTP surface: the aggregated health
// and status endpoints, the metrics snapshot, one reverse proxy mount per
// registered service, and the 404 envelope for everything else.
package handler
