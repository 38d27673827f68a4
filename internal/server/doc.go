// Package server exposes a record transformer over HTTP with gin.
//
// Routes:
//
//	POST /v1/records        process one JSON object
//	POST /v1/records/batch  process a JSON array, one result per item
//	GET  /v1/metrics        transformer metrics snapshot
//	GET  /health, /ready    liveness and readiness
//	GET  /metrics           Prometheus exposition (path configurable)
//
// Validation failures answer 422 with the failing field and condition;
// input that is not a JSON object answers 400.
package server
