package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/resumekit/gateway/pkg/apierror"
)

// DefaultUnavailableDelay is how long the client waits before its single
// 503 retry, covering services that are still starting up.
const DefaultUnavailableDelay = 2 * time.Second

// Response is the decoded outcome of a gateway call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	HTTPClient       *http.Client
	Store            TokenStore
	Policy           *Policy
	Refresh          RefreshFunc
	OnAuthExpired    func()
	UnavailableDelay time.Duration
	Logger           *slog.Logger
}

// Client talks to the gateway with retry, token refresh, and 503 recovery
// layered in. Safe for concurrent use.
type Client struct {
	baseURL          string
	http             *http.Client
	store            TokenStore
	policy           Policy
	coordinator      *RefreshCoordinator
	unavailableDelay time.Duration
	logger           *slog.Logger
}

// New creates a Client for the given gateway base URL (scheme://host:port).
func New(baseURL string, opts Options) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		http:             opts.HTTPClient,
		store:            opts.Store,
		unavailableDelay: opts.UnavailableDelay,
		logger:           opts.Logger,
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if opts.Policy != nil {
		c.policy = *opts.Policy
	} else {
		c.policy = DefaultPolicy()
	}
	if c.unavailableDelay <= 0 {
		c.unavailableDelay = DefaultUnavailableDelay
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	refresh := opts.Refresh
	if refresh == nil {
		refresh = HTTPRefreshFunc(c.baseURL)
	}
	c.coordinator = NewRefreshCoordinator(c.store, refresh, opts.OnAuthExpired, c.logger)

	return c
}

// SetTokens stores a freshly issued pair (the login flow).
func (c *Client) SetTokens(pair TokenPair) {
	c.store.Save(pair)
}

// ClearTokens drops the stored pair (the logout flow).
func (c *Client) ClearTokens() {
	c.store.Clear()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Do performs one logical call. The path is normalized onto the gateway's
// /api prefix, transport-level failures are retried per the policy, a 401
// is recovered via single-flight token refresh and replayed at most once,
// and a 503 earns a single delayed retry. HTTP error responses come back
// as a coded error alongside the response; the error message prefers the
// server-supplied detail.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	outPath := NormalizePath(path)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	res, err := c.send(ctx, method, outPath, payload)
	if err != nil {
		return nil, c.transportError(err)
	}

	// Per-request recovery flags: each path runs at most once, so a
	// request can never loop between refresh and retry.
	replayed401 := false
	retried503 := false

	for {
		if res.StatusCode == http.StatusUnauthorized && !replayed401 {
			replayed401 = true
			drain(res)

			if _, refreshErr := c.coordinator.Refresh(ctx); refreshErr != nil {
				c.logger.Warn("Token refresh failed", slog.Any("err", refreshErr))
				return nil, apierror.Errorf(apierror.CodeAuthExpired, "%s",
					apierror.MessageForStatus(http.StatusUnauthorized, ""))
			}

			res, err = c.send(ctx, method, outPath, payload)
			if err != nil {
				return nil, c.transportError(err)
			}
			continue
		}

		if res.StatusCode == http.StatusServiceUnavailable && !retried503 {
			retried503 = true
			drain(res)

			c.logger.Info("Service unavailable, retrying once",
				slog.String("path", outPath),
				slog.Duration("delay", c.unavailableDelay))
			if waitErr := wait(ctx, c.unavailableDelay); waitErr != nil {
				return nil, waitErr
			}

			res, err = c.send(ctx, method, outPath, payload)
			if err != nil {
				return nil, c.transportError(err)
			}
			continue
		}

		break
	}

	data, readErr := io.ReadAll(res.Body)
	res.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading response body: %w", readErr)
	}

	out := &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
		RequestID:  res.Header.Get("X-Request-ID"),
	}

	if res.StatusCode >= http.StatusBadRequest {
		return out, c.classify(res.StatusCode, data)
	}

	return out, nil
}

// send issues the request once through the retry wrapper. Each attempt
// rebuilds the request so the body and the current access token are fresh.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	return Retry(ctx, c.policy, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if pair, ok := c.store.Load(); ok && pair.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, apierror.Wrap(err, apierror.CodeTransientNetwork, "no response received")
		}
		return res, nil
	})
}

func (c *Client) transportError(err error) error {
	if IsTransient(err) {
		return apierror.Wrap(err, apierror.CodeTransientNetwork,
			"No response from server, please check your connection")
	}
	return err
}

// classify turns an HTTP error response into a coded error with the
// user-facing message.
func (c *Client) classify(statusCode int, body []byte) error {
	var detail struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &detail)

	serverMessage := detail.Message
	if serverMessage == "" {
		serverMessage = detail.Error
	}

	code := apierror.CodeRequestFailed
	if statusCode == http.StatusUnauthorized {
		code = apierror.CodeAuthExpired
	}

	return apierror.Errorf(code, "%s", apierror.MessageForStatus(statusCode, serverMessage))
}

// NormalizePath maps any spelling of a gateway path onto the single /api
// prefix: "ai/analyze", "/ai/analyze" and "/api/ai/analyze" all become
// "/api/ai/analyze", never "/api/api/...".
func NormalizePath(path string) string {
	p := strings.TrimPrefix(path, "/")
	if p != "api" && !strings.HasPrefix(p, "api/") {
		p = "api/" + p
	}
	return "/" + p
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	res.Body.Close()
}
