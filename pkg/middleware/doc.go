// Package middleware provides HTTP middleware for the relay server.
//
// This package includes:
//   - OpenTelemetry tracing of HTTP requests
//   - Prometheus request metrics
//   - Structured request logging
//
// Each middleware has the func(http.Handler) http.Handler shape, so it
// plugs into chi directly:
//
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.Logger(logger),
//	    middleware.Prometheus(middleware.WithRegistry(reg)),
//	    middleware.OpenTelemetry(middleware.WithTracerName("relay")),
//	)
//
// Response status and size are captured with httpsnoop, which keeps the
// optional http.Hijacker interface of the wrapped writer intact so
// WebSocket upgrades pass through.
package middleware
