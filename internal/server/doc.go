// Package server runs the phenowatch dashboard: the REST API, the WebSocket
// stream, the Prometheus exposition, an optional static UI and the gRPC health
// service, plus the background loops that keep the report fresh.
package server
