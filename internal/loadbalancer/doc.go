// Package loadbalancer chooses the upstream for each request by running the
// configured strategy over the health checker's current healthy set.
package loadbalancer
