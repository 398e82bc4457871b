package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/resumekit/gateway/pkg/apierror"
	"github.com/resumekit/gateway/pkg/client"
)

// fastPolicy keeps transport retries out of the way of tests that exercise
// the HTTP-level recovery paths.
func fastPolicy() *client.Policy {
	return &client.Policy{
		MaxRetries:   2,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		ShouldRetry:  client.IsTransient,
	}
}

var _ = Describe("Client", func() {
	Describe("path normalization", func() {
		DescribeTable("NormalizePath",
			func(in, want string) {
				Expect(client.NormalizePath(in)).To(Equal(want))
			},
			Entry("bare path", "ai/analyze", "/api/ai/analyze"),
			Entry("leading slash", "/ai/analyze", "/api/ai/analyze"),
			Entry("already prefixed", "/api/ai/analyze", "/api/ai/analyze"),
			Entry("prefixed without slash", "api/ai/analyze", "/api/ai/analyze"),
			Entry("prefix only", "/api", "/api"),
			Entry("segment that merely starts with api", "apikeys/list", "/api/apikeys/list"),
		)

		It("sends every spelling to the same gateway route", func() {
			var paths []string
			var mu sync.Mutex
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				paths = append(paths, r.URL.Path)
				mu.Unlock()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{Policy: fastPolicy()})
			_, err := c.Get(context.Background(), "ai/analyze")
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Get(context.Background(), "/api/ai/analyze")
			Expect(err).NotTo(HaveOccurred())

			Expect(paths).To(Equal([]string{"/api/ai/analyze", "/api/ai/analyze"}))
		})
	})

	Describe("token refresh on 401", func() {
		It("refreshes once and replays both of two concurrent rejected requests", func() {
			var refreshCalls atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer new-access" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			refresh := func(ctx context.Context, refreshToken string) (client.TokenPair, error) {
				refreshCalls.Add(1)
				Expect(refreshToken).To(Equal("refresh-1"))
				// Hold the flight open long enough for the second caller
				// to join it instead of starting its own.
				time.Sleep(50 * time.Millisecond)
				return client.TokenPair{AccessToken: "new-access", RefreshToken: "refresh-2"}, nil
			}

			c := client.New(server.URL, client.Options{
				Policy:  fastPolicy(),
				Refresh: refresh,
			})
			c.SetTokens(client.TokenPair{AccessToken: "stale", RefreshToken: "refresh-1"})

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				i := i
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = c.Get(context.Background(), "/api/user/profile")
				}()
			}
			wg.Wait()

			Expect(errs[0]).NotTo(HaveOccurred())
			Expect(errs[1]).NotTo(HaveOccurred())
			Expect(refreshCalls.Load()).To(Equal(int32(1)))
		})

		It("fails fast without a network call when no refresh token is stored", func() {
			var refreshCalls atomic.Int32
			var expired atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{
				Policy: fastPolicy(),
				Refresh: func(ctx context.Context, refreshToken string) (client.TokenPair, error) {
					refreshCalls.Add(1)
					return client.TokenPair{}, nil
				},
				OnAuthExpired: func() { expired.Add(1) },
			})

			_, err := c.Get(context.Background(), "/api/cv/list")

			Expect(err).To(HaveOccurred())
			Expect(apierror.HasCode(err, apierror.CodeAuthExpired)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("Please log in to continue"))
			Expect(refreshCalls.Load()).To(Equal(int32(0)))
			Expect(expired.Load()).To(Equal(int32(1)))
		})

		It("replays at most once even if the server keeps rejecting", func() {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{
				Policy: fastPolicy(),
				Refresh: func(ctx context.Context, refreshToken string) (client.TokenPair, error) {
					return client.TokenPair{AccessToken: "fresh", RefreshToken: "r2"}, nil
				},
			})
			c.SetTokens(client.TokenPair{AccessToken: "stale", RefreshToken: "r1"})

			res, err := c.Get(context.Background(), "/api/user/profile")

			Expect(err).To(HaveOccurred())
			Expect(apierror.HasCode(err, apierror.CodeAuthExpired)).To(BeTrue())
			Expect(res.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(hits.Load()).To(Equal(int32(2)))
		})
	})

	Describe("503 recovery", func() {
		It("retries once after the delay and succeeds", func() {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{
				Policy:           fastPolicy(),
				UnavailableDelay: 10 * time.Millisecond,
			})

			start := time.Now()
			res, err := c.Get(context.Background(), "/api/cv/list")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(http.StatusOK))
			Expect(hits.Load()).To(Equal(int32(2)))
			Expect(time.Since(start)).To(BeNumerically(">=", 10*time.Millisecond))
		})

		It("surfaces the second 503 with the gateway's message", func() {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status":  "error",
					"message": "cv service temporarily unavailable",
				})
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{
				Policy:           fastPolicy(),
				UnavailableDelay: 5 * time.Millisecond,
			})

			res, err := c.Get(context.Background(), "/api/cv/list")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("cv service temporarily unavailable"))
			Expect(res.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(hits.Load()).To(Equal(int32(2)))
		})
	})

	Describe("error classification", func() {
		It("prefers the server-supplied message", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"message":"email is already taken"}`))
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{Policy: fastPolicy()})
			_, err := c.Post(context.Background(), "/api/auth/register", map[string]string{"email": "a@b.c"})

			Expect(err).To(HaveOccurred())
			Expect(apierror.HasCode(err, apierror.CodeRequestFailed)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("email is already taken"))
		})

		It("falls back to the status-mapped message when the body has none", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{Policy: fastPolicy()})
			res, err := c.Get(context.Background(), "/api/missing")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("The requested resource was not found"))
			Expect(res.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("reports unreachable servers as a connection problem", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			server.Close()

			c := client.New(server.URL, client.Options{Policy: &client.Policy{
				MaxRetries:   1,
				InitialDelay: time.Millisecond,
				MaxDelay:     time.Millisecond,
				ShouldRetry:  client.IsTransient,
			}})

			_, err := c.Get(context.Background(), "/api/cv/list")

			Expect(err).To(HaveOccurred())
			Expect(apierror.HasCode(err, apierror.CodeTransientNetwork)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("No response from server, please check your connection"))
		})
	})

	Describe("request building", func() {
		It("attaches the bearer token and JSON body", func() {
			var gotAuth, gotContentType, gotBody string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotContentType = r.Header.Get("Content-Type")
				raw, _ := io.ReadAll(r.Body)
				gotBody = string(raw)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{Policy: fastPolicy()})
			c.SetTokens(client.TokenPair{AccessToken: "token-abc", RefreshToken: "r"})

			_, err := c.Post(context.Background(), "/api/cv", map[string]string{"title": "My CV"})

			Expect(err).NotTo(HaveOccurred())
			Expect(gotAuth).To(Equal("Bearer token-abc"))
			Expect(gotContentType).To(Equal("application/json"))
			Expect(gotBody).To(MatchJSON(`{"title":"My CV"}`))
		})

		It("exposes the gateway request id on the response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Request-ID", "req-123")
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			c := client.New(server.URL, client.Options{Policy: fastPolicy()})
			res, err := c.Get(context.Background(), "/api/user/profile")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.RequestID).To(Equal("req-123"))
		})
	})
})
