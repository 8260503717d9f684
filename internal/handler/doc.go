// Package handler implements the HTTP handlers of the gateway: the proxy
// handler that routes each request to a healthy upstream, and the status
// handler that exposes the health checker's current partition.
package handler
