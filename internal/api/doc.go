// Package api hosts the HTTP server, middleware, and REST handlers for the
// stockroom service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/articles for article CRUD, stock moves and product images.
//   - /v1/codes/{code} for scan-code lookups, adjustments and identifier images.
//   - GET /v1/export.csv for a spreadsheet-friendly dump.
package api
