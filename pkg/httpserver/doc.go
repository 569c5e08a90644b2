// Package httpserver provides a thin wrapper around net/http that adds
// graceful shutdown on context cancellation or interrupt/TERM signals,
// env-tagged timeout configuration, and structured startup logging.
package httpserver
