// Package backend implements reverse proxy functionality for upstream nodes.
// It provides connection tracking, response time monitoring, and a Pool that
// maps node authorities to their proxies. Health is not tracked here; the
// healthcheck package owns it.
package backend
