// Package server implements the admin HTTP API of the runtime
//
// It serves the deployed flow document, accepts deploys, triggers nodes,
// lists registered node types, streams runtime events to websocket
// clients, and exposes Prometheus metrics
package server
