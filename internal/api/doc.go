// Package api hosts the HTTP server, middleware, and REST handlers of the
// crawl service. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue a crawl run.
//   - GET /v1/runs and /v1/runs/{run_id} for run progress.
package api
