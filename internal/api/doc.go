// Package api hosts the HTTP server and REST handlers of the archive service.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/archives to queue a page, GET /v1/archives/{run_id} for its run record.
//   - GET|HEAD|DELETE /v1/objects/* over the configured storage backend.
package api
