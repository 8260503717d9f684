// Package strategy defines the load balancing strategy interface and
// implements various algorithms:
//
//   - Round Robin: Sequential distribution across backends
//   - Random: Random backend selection
//   - Least Connections: Routes to backend with fewest active connections
//   - Least Response Time: Routes based on exponentially weighted moving average (EWMA) response times
//   - Consistent Hash: Client-key affinity on an xxhash ring
//   - Weighted Round Robin: Distribution proportional to backend weights
//
// Strategies only ever see the healthy set reported by the health checker.
package strategy
