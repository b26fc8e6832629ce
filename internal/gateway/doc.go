// Package gateway orchestrates the taskd server components.
//
// # Overview
//
// The gateway owns the SQLite store, the account and task services, the
// idempotency cache, and the two network servers:
//
//   - HTTP: the JSON account and task API plus /health and /health/ready
//   - gRPC: grpc.health.v1.Health and server reflection
//
// # HTTP API
//
//	POST   /api/auth/register   {"name","email","password"} -> 201 session
//	POST   /api/auth/login      {"email","password"}        -> 200 session
//	POST   /api/tasks           {"title","description","deadline"} -> 201 {"task"}
//	GET    /api/tasks           ?state= &search= &deadline_before= -> {"tasks"}
//	GET    /api/tasks/{id}      -> {"task"}
//	PUT    /api/tasks/{id}      {"title","description","state","deadline"} -> {"task"}
//	DELETE /api/tasks/{id}      -> {"deleted": id}
//
// Task routes require "Authorization: Bearer <token>". The verified identity
// is passed to each handler as an argument.
//
// POST /api/tasks honors an Idempotency-Key header: a repeat of a completed
// request answers 200 with the original task; a repeat while the first is
// still running answers 409.
//
// Adding ?render=html to any task response includes description_html,
// the description rendered from Markdown.
//
// # Errors
//
// Errors are JSON {"error", "kind", "reason"} with these statuses:
//
//	validation          400
//	unauthenticated     401
//	forbidden           403 (reason not_owner or terminal)
//	not_found           404
//	conflict            409
//	invalid_transition  422
//	storage             500
//
// # Listeners
//
// By default the servers bind server.grpc_addr and server.http_addr. With
// tailscale.enabled the gateway joins the tailnet through tsnet and serves
// gRPC on :50051 and HTTP on :80, :443 with Tailscale certificates, or a
// public Funnel.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown marks the gRPC health service NOT_SERVING, drains HTTP, stops
// gRPC within five seconds and closes the store.
package gateway
