package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/resumekit/gateway/internal/envelope"
	"github.com/resumekit/gateway/internal/healthmonitor"
	"github.com/resumekit/gateway/internal/metrics"
	"github.com/resumekit/gateway/internal/proxy"
	"github.com/resumekit/gateway/internal/registry"
	"github.com/resumekit/gateway/internal/status"
)

// Gateway owns the HTTP routing surface.
type Gateway struct {
	registry  *registry.Registry
	table     *status.Table
	monitor   *healthmonitor.Monitor
	collector *metrics.Collector
	logger    *slog.Logger
	startTime time.Time
}

func New(reg *registry.Registry, table *status.Table, monitor *healthmonitor.Monitor, collector *metrics.Collector, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry:  reg,
		table:     table,
		monitor:   monitor,
		collector: collector,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router builds the chi router: system endpoints first, then one proxy
// mount per registered service, then the 404 envelope fallback.
func (g *Gateway) Router(corsOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(corsOrigins))
	r.Use(g.requestID)

	r.Get("/api/health", g.handleHealth)
	r.Get("/api/gateway-status", g.handleGatewayStatus)
	if g.collector != nil {
		r.Get("/metrics", g.collector.Handler())
	}

	for _, svc := range g.registry.All() {
		p := proxy.New(svc, g.table, g.collector, g.logger)
		r.Mount(svc.Prefix, p)
	}

	r.NotFound(g.handleNotFound)

	return r
}

// requestID tags every request with a fresh correlation id and echoes it
// on the response so callers can quote it to support.
func (g *Gateway) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		r.Header.Set(proxy.RequestIDHeader, id)
		w.Header().Set(proxy.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type serviceReport struct {
	Name    string               `json:"name"`
	BaseURL string               `json:"base_url"`
	Prefix  string               `json:"prefix"`
	Status  status.ServiceStatus `json:"status"`
}

type healthResponse struct {
	Status    string                          `json:"status"`
	Timestamp string                          `json:"timestamp"`
	Services  map[string]status.ServiceStatus `json:"services"`
}

type gatewayStatusResponse struct {
	Gateway  string          `json:"gateway"`
	Uptime   string          `json:"uptime"`
	Services []serviceReport `json:"services"`
}

// handleHealth reports the cached status table; ?check=true forces a live
// probe of all services first. 200 only when every service is available.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("check") == "true" {
		g.monitor.ProbeAll(r.Context())
	}

	services := make(map[string]status.ServiceStatus, g.registry.Len())
	names := make([]string, 0, g.registry.Len())
	for _, svc := range g.registry.All() {
		names = append(names, svc.Name)
		s, _ := g.table.Get(svc.Name)
		services[svc.Name] = s
	}

	body := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	code := http.StatusOK
	if !g.table.AllAvailable(names) {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, body)
}

// handleGatewayStatus always answers 200 with the registry and the full
// status table, for external monitoring.
func (g *Gateway) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	body := gatewayStatusResponse{
		Gateway: "ok",
		Uptime:  time.Since(g.startTime).Round(time.Second).String(),
	}

	for _, svc := range g.registry.All() {
		s, _ := g.table.Get(svc.Name)
		body.Services = append(body.Services, serviceReport{
			Name:    svc.Name,
			BaseURL: svc.BaseURL.String(),
			Prefix:  svc.Prefix,
			Status:  s,
		})
	}

	writeJSON(w, http.StatusOK, body)
}

func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(proxy.RequestIDHeader)

	g.logger.Info("Unmatched route",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestID))

	envelope.Write(w, http.StatusNotFound, requestID,
		envelope.RouteNotFound(r.URL.Path, requestID))
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", proxy.RequestIDHeader},
		ExposedHeaders:   []string{proxy.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
