package proxy

import (
	"net/http"
	"time"
)

// ProxiedRequest carries per-request state across the middleware stages.
// It is created when the gateway receives a request and discarded once the
// response is written.
type ProxiedRequest struct {
	Service      string
	Method       string
	InboundPath  string
	OutboundPath string
	RequestID    string
	Start        time.Time
}

// BeforeForward runs on the outbound request just before it is sent to the
// downstream service. Returning an error aborts the forward and routes the
// request through the OnError stages.
type BeforeForward func(*ProxiedRequest, *http.Request) error

// AfterForward runs on the downstream response before it is relayed to the
// caller. Returning an error routes the request through the OnError stages.
type AfterForward func(*ProxiedRequest, *http.Response) error

// OnError runs when the downstream service could not be reached or an
// earlier stage failed. Stages observe the failure; the proxy itself owns
// writing the error envelope.
type OnError func(*ProxiedRequest, error)

// Chain is an ordered set of middleware stages.
type Chain struct {
	before  []BeforeForward
	after   []AfterForward
	onError []OnError
}

// UseBefore appends a stage that runs before the request is forwarded.
// Stages run in registration order.
func (c *Chain) UseBefore(stage BeforeForward) {
	c.before = append(c.before, stage)
}

// UseAfter appends a stage that runs on the downstream response.
func (c *Chain) UseAfter(stage AfterForward) {
	c.after = append(c.after, stage)
}

// UseOnError appends a stage that observes forwarding failures.
func (c *Chain) UseOnError(stage OnError) {
	c.onError = append(c.onError, stage)
}

func (c *Chain) runBefore(pr *ProxiedRequest, req *http.Request) error {
	for _, stage := range c.before {
		if err := stage(pr, req); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) runAfter(pr *ProxiedRequest, res *http.Response) error {
	for _, stage := range c.after {
		if err := stage(pr, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) runOnError(pr *ProxiedRequest, err error) {
	for _, stage := range c.onError {
		stage(pr, err)
	}
}
