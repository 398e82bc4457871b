package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resumekit/gateway/internal/envelope"
	"github.com/resumekit/gateway/internal/metrics"
	"github.com/resumekit/gateway/internal/registry"
	"github.com/resumekit/gateway/internal/status"
	"github.com/resumekit/gateway/pkg/apierror"
)

// RequestIDHeader carries the correlation id across hops.
const RequestIDHeader = "X-Request-ID"

// DefaultTimeout bounds one proxied request end to end.
const DefaultTimeout = 30 * time.Second

type contextKey struct{}

// ServiceProxy forwards requests under one route prefix to its service.
// Retries are strictly a client-side concern; the proxy never re-issues a
// request, so mutating calls are never silently duplicated server-side.
type ServiceProxy struct {
	service   *registry.Service
	table     *status.Table
	collector *metrics.Collector
	chain     *Chain
	reverse   *httputil.ReverseProxy
	logger    *slog.Logger
	timeout   time.Duration
}

// New creates a ServiceProxy with the built-in middleware stages installed:
// correlation id injection before forwarding, status reconciliation after,
// and failure translation on error.
func New(svc *registry.Service, table *status.Table, collector *metrics.Collector, logger *slog.Logger) *ServiceProxy {
	p := &ServiceProxy{
		service:   svc,
		table:     table,
		collector: collector,
		chain:     &Chain{},
		logger:    logger,
		timeout:   DefaultTimeout,
	}

	p.reverse = httputil.NewSingleHostReverseProxy(svc.BaseURL)
	p.reverse.ModifyResponse = func(res *http.Response) error {
		// Drop the downstream's echoed correlation id; the gateway
		// already set its own copy on the response writer, and the
		// reverse proxy would Add the echo as a duplicate value.
		res.Header.Del(RequestIDHeader)

		pr := fromContext(res.Request.Context())
		return p.chain.runAfter(pr, res)
	}
	p.reverse.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		p.fail(w, fromContext(req.Context()), err)
	}

	p.chain.UseBefore(p.injectRequestID)
	p.chain.UseAfter(p.reconcileStatus)
	p.chain.UseOnError(p.recordFailure)

	return p
}

// UseBefore appends a custom stage that runs on the outbound request.
func (p *ServiceProxy) UseBefore(stage BeforeForward) {
	p.chain.UseBefore(stage)
}

// UseAfter appends a custom stage that runs on the downstream response.
func (p *ServiceProxy) UseAfter(stage AfterForward) {
	p.chain.UseAfter(stage)
}

// UseOnError appends a custom stage that observes forwarding failures.
func (p *ServiceProxy) UseOnError(stage OnError) {
	p.chain.UseOnError(stage)
}

// ServeHTTP forwards one request. The inbound Authorization header travels
// to the service verbatim via the cloned request.
func (p *ServiceProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	pr := &ProxiedRequest{
		Service:      p.service.Name,
		Method:       r.Method,
		InboundPath:  r.URL.Path,
		OutboundPath: p.rewritePath(r.URL.Path),
		RequestID:    requestID,
		Start:        time.Now(),
	}

	p.emit(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Service:   p.service.Name,
	})

	out := r.Clone(context.WithValue(ctx, contextKey{}, pr))
	out.URL.Path = pr.OutboundPath
	out.URL.RawPath = ""

	if err := p.chain.runBefore(pr, out); err != nil {
		p.fail(w, pr, err)
		return
	}

	w.Header().Set(RequestIDHeader, requestID)
	p.reverse.ServeHTTP(w, out)
}

// rewritePath strips the matched route prefix so the service sees the
// remainder, e.g. /api/auth/login -> /login.
func (p *ServiceProxy) rewritePath(inbound string) string {
	path := strings.TrimPrefix(inbound, p.service.Prefix)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (p *ServiceProxy) injectRequestID(pr *ProxiedRequest, req *http.Request) error {
	req.Header.Set(RequestIDHeader, pr.RequestID)
	return nil
}

// reconcileStatus applies the live-traffic policy: any response below 500
// proves the service is up, 500 and above marks it unavailable and is
// translated into the uniform envelope. This is deliberately stricter than
// the health probe's reachability rule.
func (p *ServiceProxy) reconcileStatus(pr *ProxiedRequest, res *http.Response) error {
	if res.StatusCode >= http.StatusInternalServerError {
		detail := fmt.Sprintf("HTTP %d", res.StatusCode)
		p.table.MarkUnavailable(pr.Service, detail)
		p.logger.Warn("Upstream error response",
			slog.String("service", pr.Service),
			slog.Int("status", res.StatusCode),
			slog.String("request_id", pr.RequestID))
		return apierror.Errorf(apierror.CodeProxyUpstream, "%s", detail)
	}

	p.table.MarkAvailable(pr.Service, time.Since(pr.Start))
	p.emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Service:    pr.Service,
		Duration:   time.Since(pr.Start),
		StatusCode: res.StatusCode,
	})
	return nil
}

func (p *ServiceProxy) recordFailure(pr *ProxiedRequest, err error) {
	// Upstream >=500 responses were already recorded by reconcileStatus;
	// everything else is a connection-level failure.
	if !apierror.HasCode(err, apierror.CodeProxyUpstream) {
		p.table.MarkUnavailable(pr.Service, err.Error())
	}

	p.emit(metrics.MetricEvent{
		Type:      metrics.EventServiceFailed,
		Timestamp: time.Now(),
		Service:   pr.Service,
	})
	p.emit(metrics.MetricEvent{
		Type:      metrics.EventHealthChanged,
		Timestamp: time.Now(),
		Service:   pr.Service,
		Available: false,
	})
}

// fail runs the OnError stages and writes the 503 envelope. One failing
// service degrades only the requests that target it.
func (p *ServiceProxy) fail(w http.ResponseWriter, pr *ProxiedRequest, err error) {
	p.chain.runOnError(pr, err)

	p.logger.Error("Proxy forward failed",
		slog.String("service", pr.Service),
		slog.String("method", pr.Method),
		slog.String("path", pr.InboundPath),
		slog.String("request_id", pr.RequestID),
		slog.Any("err", err))

	body := envelope.ServiceUnavailable(pr.Service, err.Error(), pr.RequestID)
	if p.isRegistrationRequest(pr) {
		body.Message = "Registration is temporarily unavailable, please try again in a moment"
	}

	envelope.Write(w, http.StatusServiceUnavailable, pr.RequestID, body)
}

// isRegistrationRequest detects sign-up traffic to the auth service so the
// envelope can carry a registration-specific message.
func (p *ServiceProxy) isRegistrationRequest(pr *ProxiedRequest) bool {
	return p.service.Name == "auth" && strings.Contains(pr.OutboundPath, "register")
}

func (p *ServiceProxy) emit(event metrics.MetricEvent) {
	if p.collector == nil {
		return
	}
	p.collector.Emit(event)
}

func fromContext(ctx context.Context) *ProxiedRequest {
	if pr, ok := ctx.Value(contextKey{}).(*ProxiedRequest); ok {
		return pr
	}
	return &ProxiedRequest{}
}
