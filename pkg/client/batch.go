package client

import (
	"context"
	"net/url"

	"golang.org/x/sync/errgroup"
)

// BatchRequest describes one independent item in a batch.
type BatchRequest struct {
	Method string
	Path   string
	Body   any
	Query  url.Values
}

// BatchResult is the per-item outcome. Exactly one of Data or Err is
// meaningful, selected by Success.
type BatchResult struct {
	Success  bool
	Response *Response
	Err      error
}

// BatchOptions controls batch execution.
type BatchOptions struct {
	// Parallel selects windowed parallel execution (the default) over
	// strictly sequential execution.
	Parallel bool
	// Concurrency is the window size in parallel mode.
	Concurrency int
}

// DefaultBatchOptions matches the product defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{Parallel: true, Concurrency: 5}
}

// DoBatch runs every request and returns one result per input, in input
// order, regardless of per-item latency or failure. A failing item never
// aborts the batch.
//
// Parallel mode processes the input in fixed windows of Concurrency: each
// window is dispatched fully in parallel and awaited completely before the
// next window starts. This is a chunked scheduler, not a streaming worker
// pool; a slow item holds back its window only.
func (c *Client) DoBatch(ctx context.Context, requests []BatchRequest, opts BatchOptions) []BatchResult {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultBatchOptions().Concurrency
	}

	results := make([]BatchResult, len(requests))

	if !opts.Parallel {
		for i, req := range requests {
			results[i] = c.runItem(ctx, req)
		}
		return results
	}

	for start := 0; start < len(requests); start += opts.Concurrency {
		end := start + opts.Concurrency
		if end > len(requests) {
			end = len(requests)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = c.runItem(gctx, requests[i])
				// Failures are captured per item, never propagated.
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}

func (c *Client) runItem(ctx context.Context, req BatchRequest) BatchResult {
	path := req.Path
	if len(req.Query) > 0 {
		path = path + "?" + req.Query.Encode()
	}

	res, err := c.Do(ctx, req.Method, path, req.Body)
	if err != nil {
		return BatchResult{Success: false, Response: res, Err: err}
	}
	return BatchResult{Success: true, Response: res}
}
