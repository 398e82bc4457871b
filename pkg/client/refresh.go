package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/resumekit/gateway/pkg/apierror"
)

// RefreshFunc exchanges a refresh token for a fresh pair. Implementations
// must bypass the resilient client so a 401 from the refresh endpoint
// cannot recurse into another refresh.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// RefreshCoordinator guarantees at most one refresh network call is in
// flight process-wide. The first 401-triggering caller starts the refresh;
// concurrent callers await the same in-flight result, and the slot is
// cleared on completion so a later 401 starts a fresh one.
type RefreshCoordinator struct {
	group         singleflight.Group
	store         TokenStore
	refresh       RefreshFunc
	onAuthExpired func()
	logger        *slog.Logger
}

// NewRefreshCoordinator wires the single-flight refresh flow.
// onAuthExpired fires once per failed refresh, standing in for the
// redirect-to-login the web client performs; it may be nil.
func NewRefreshCoordinator(store TokenStore, refresh RefreshFunc, onAuthExpired func(), logger *slog.Logger) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:         store,
		refresh:       refresh,
		onAuthExpired: onAuthExpired,
		logger:        logger,
	}
}

// Refresh returns a fresh access token, joining any refresh already in
// flight. On failure (including no stored refresh token) both tokens are
// cleared, the auth-expired hook fires, and the error propagates to every
// waiter.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (string, error) {
	token, err, shared := c.group.Do("refresh", func() (any, error) {
		pair, ok := c.store.Load()
		if !ok || pair.RefreshToken == "" {
			c.expire()
			return nil, apierror.New(apierror.CodeRefreshFailed, "no refresh token stored")
		}

		newPair, err := c.refresh(ctx, pair.RefreshToken)
		if err != nil {
			c.expire()
			return nil, apierror.Wrap(err, apierror.CodeRefreshFailed, "token refresh failed")
		}

		c.store.Save(newPair)
		c.logger.Debug("Access token refreshed")
		return newPair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	if shared {
		c.logger.Debug("Joined in-flight token refresh")
	}

	return token.(string), nil
}

// expire clears both tokens and fires the redirect hook. Runs inside the
// single-flight slot so it executes once per failed refresh, not once per
// waiter.
func (c *RefreshCoordinator) expire() {
	c.store.Clear()
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}

// HTTPRefreshFunc calls the auth service's refresh endpoint through the
// gateway with a bare HTTP client and an explicit deadline.
func HTTPRefreshFunc(gatewayBaseURL string) RefreshFunc {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, refreshToken string) (TokenPair, error) {
		payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return TokenPair{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			gatewayBaseURL+"/api/auth/refresh", bytes.NewReader(payload))
		if err != nil {
			return TokenPair{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := httpClient.Do(req)
		if err != nil {
			return TokenPair{}, err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return TokenPair{}, fmt.Errorf("refresh endpoint returned HTTP %d: %s", res.StatusCode, body)
		}

		var pair TokenPair
		if err := json.NewDecoder(res.Body).Decode(&pair); err != nil {
			return TokenPair{}, fmt.Errorf("decoding refresh response: %w", err)
		}
		if pair.AccessToken == "" {
			return TokenPair{}, fmt.Errorf("refresh response missing access token")
		}

		return pair, nil
	}
}
