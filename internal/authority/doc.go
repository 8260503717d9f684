// Package authority defines the host[:port] identifier used to name upstream
// nodes throughout the gateway, along with parsing and validation helpers for
// the configuration loader.
package authority
