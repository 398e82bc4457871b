package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/resumekit/gateway/pkg/client"
)

var _ = Describe("DoBatch", func() {
	It("returns results in input order and never exceeds the window size", func() {
		var inFlight, peak atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(r.URL.Path))
		}))
		defer server.Close()

		c := client.New(server.URL, client.Options{Policy: fastPolicy()})

		requests := make([]client.BatchRequest, 12)
		for i := range requests {
			requests[i] = client.BatchRequest{
				Method: http.MethodGet,
				Path:   fmt.Sprintf("/api/cv/%d", i),
			}
		}

		results := c.DoBatch(context.Background(), requests, client.DefaultBatchOptions())

		Expect(results).To(HaveLen(12))
		for i, res := range results {
			Expect(res.Success).To(BeTrue(), "item %d", i)
			Expect(string(res.Response.Body)).To(Equal(fmt.Sprintf("/api/cv/%d", i)))
		}
		Expect(peak.Load()).To(BeNumerically("<=", 5))
		Expect(peak.Load()).To(BeNumerically(">", 1))
	})

	It("captures per-item failures without aborting the batch", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "missing") {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := client.New(server.URL, client.Options{Policy: fastPolicy()})

		requests := []client.BatchRequest{
			{Method: http.MethodGet, Path: "/api/cv/1"},
			{Method: http.MethodGet, Path: "/api/cv/missing"},
			{Method: http.MethodGet, Path: "/api/cv/2"},
		}

		results := c.DoBatch(context.Background(), requests, client.DefaultBatchOptions())

		Expect(results).To(HaveLen(3))
		Expect(results[0].Success).To(BeTrue())
		Expect(results[1].Success).To(BeFalse())
		Expect(results[1].Err).To(HaveOccurred())
		Expect(results[1].Err.Error()).To(ContainSubstring("The requested resource was not found"))
		Expect(results[2].Success).To(BeTrue())
	})

	It("runs strictly one at a time in sequential mode", func() {
		var inFlight, peak atomic.Int32
		var order []string
		var mu sync.Mutex
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			if cur > peak.Load() {
				peak.Store(cur)
			}
			mu.Lock()
			order = append(order, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := client.New(server.URL, client.Options{Policy: fastPolicy()})

		requests := []client.BatchRequest{
			{Method: http.MethodGet, Path: "/api/export/1"},
			{Method: http.MethodGet, Path: "/api/export/2"},
			{Method: http.MethodGet, Path: "/api/export/3"},
		}

		results := c.DoBatch(context.Background(), requests, client.BatchOptions{Parallel: false})

		Expect(results).To(HaveLen(3))
		Expect(peak.Load()).To(Equal(int32(1)))
		Expect(order).To(Equal([]string{"/api/export/1", "/api/export/2", "/api/export/3"}))
	})

	It("appends query parameters to the item path", func() {
		var gotQuery url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := client.New(server.URL, client.Options{Policy: fastPolicy()})

		results := c.DoBatch(context.Background(), []client.BatchRequest{{
			Method: http.MethodGet,
			Path:   "/api/cv/list",
			Query:  url.Values{"page": {"2"}, "limit": {"10"}},
		}}, client.DefaultBatchOptions())

		Expect(results[0].Success).To(BeTrue())
		Expect(gotQuery.Get("page")).To(Equal("2"))
		Expect(gotQuery.Get("limit")).To(Equal("10"))
	})
})
