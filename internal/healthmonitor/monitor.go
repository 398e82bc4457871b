package healthmonitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/resumekit/gateway/internal/registry"
	"github.com/resumekit/gateway/internal/status"
)

// HealthPath is the well-known endpoint every downstream service exposes.
const HealthPath = "/api/health"

const (
	// DefaultInterval is how often the monitor re-probes all services.
	DefaultInterval = 60 * time.Second
	// DefaultProbeTimeout bounds a single health probe.
	DefaultProbeTimeout = 10 * time.Second
)

// Monitor probes every registered service and writes results into the
// status table.
type Monitor struct {
	registry *registry.Registry
	table    *status.Table
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Monitor with the given probe interval. A zero interval
// falls back to DefaultInterval.
func New(reg *registry.Registry, table *status.Table, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Monitor{
		registry: reg,
		table:    table,
		client:   &http.Client{Timeout: DefaultProbeTimeout},
		interval: interval,
		logger:   logger,
	}
}

// ProbeAll checks every registered service concurrently and records the
// result per service. One service's failure never affects another's
// result, and ProbeAll itself never returns an error: failures live only
// in the status table.
func (m *Monitor) ProbeAll(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)

	for _, svc := range m.registry.All() {
		svc := svc
		g.Go(func() error {
			m.probe(ctx, svc)
			return nil
		})
	}

	_ = g.Wait()
}

// probe performs one health check and classifies the outcome. Any status
// below 500 (4xx included) counts as available: the health endpoint only
// has to be reachable, not fully successful. Live proxied traffic applies
// the stricter >=500 rule; the asymmetry is liveness vs correctness.
func (m *Monitor) probe(ctx context.Context, svc *registry.Service) {
	healthURL := svc.BaseURL.ResolveReference(&url.URL{Path: HealthPath})

	wasAvailable := m.available(svc.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		m.table.MarkUnavailable(svc.Name, err.Error())
		return
	}

	start := time.Now()
	res, err := m.client.Do(req)
	if err != nil {
		m.table.MarkUnavailable(svc.Name, err.Error())
		m.logTransition(svc.Name, wasAvailable, false, err.Error())
		return
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusInternalServerError {
		detail := fmt.Sprintf("HTTP %d", res.StatusCode)
		m.table.MarkUnavailable(svc.Name, detail)
		m.logTransition(svc.Name, wasAvailable, false, detail)
		return
	}

	m.table.MarkAvailable(svc.Name, time.Since(start))
	m.logTransition(svc.Name, wasAvailable, true, "")
}

// Run performs probes on a fixed interval until the context is cancelled.
// It never returns an error; the monitor is expected to outlive every
// individual probe failure.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Health monitor started",
		slog.Duration("interval", m.interval),
		slog.Int("services", m.registry.Len()))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

func (m *Monitor) available(name string) bool {
	s, ok := m.table.Get(name)
	return ok && s.Available
}

func (m *Monitor) logTransition(name string, was, now bool, detail string) {
	if was == now {
		return
	}

	if now {
		m.logger.Info("Service is back up", slog.String("service", name))
	} else {
		m.logger.Warn("Service is down",
			slog.String("service", name),
			slog.String("error", detail))
	}
}
