// Package healthcheck tracks which upstream nodes are reachable.
//
// A Checker owns the node list and the latest healthy/unhealthy Partition. It
// runs a single goroutine that sweeps every node with an HTTP probe on a fixed
// interval and answers queries from the most recently completed sweep, so
// request routing never waits on network I/O:
//
//	checker := healthcheck.New(ctx, nodes, healthcheck.Config{
//		Scheme:   healthcheck.SchemeHTTP,
//		Path:     "health",
//		Interval: 2 * time.Second,
//		Status:   []int{http.StatusOK},
//	}, healthcheck.WithLogger(log))
//	defer checker.Close()
//
//	node, err := checker.Get(ctx, healthcheck.First)
//
// Selectors run on the caller's goroutine against a copy of the healthy list;
// the checker goroutine is the only writer of health state.
package healthcheck
