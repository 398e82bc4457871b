// Package proxy implements per-service reverse proxying for the gateway.
// Each service gets a forwarder that rewrites the route prefix, carries the
// caller's Authorization header through, tags the request with a
// correlation id, reconciles the status table from the live response, and
// translates connection-level failures into the uniform error envelope.
//
// Extension points are an explicit middleware chain with three typed
// stages (BeforeForward, AfterForward, OnError) rather than ad-hoc
// callbacks; the built-in behavior above is itself installed as stages.
package proxy
