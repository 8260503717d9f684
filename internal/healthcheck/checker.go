package healthcheck

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ironmanme/poem-gateway/internal/authority"
)

var (
	// ErrStopped is returned by queries once the checker goroutine has exited.
	ErrStopped = errors.New("health checker stopped")
	// ErrNoSelection is returned when the selector declined, the healthy set
	// was empty, or the selector panicked.
	ErrNoSelection = errors.New("no healthy node selected")
)

// Checker is the handle to a running health checker. It is safe for
// concurrent use and is shared by pointer; all health state lives in the
// checker goroutine and is reached only through commands.
type Checker struct {
	nodes    []authority.Authority
	settings *settings
	prober   Prober
	clock    clockwork.Clock
	logger   *slog.Logger
	listener func(Snapshot)

	commands  chan command
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Checker.
type Option func(*Checker)

// WithProber replaces the default HTTP prober.
func WithProber(p Prober) Option {
	return func(c *Checker) {
		c.prober = p
	}
}

// WithHTTPClient sets the client used by the default HTTP prober.
func WithHTTPClient(client Doer) Option {
	return func(c *Checker) {
		c.prober = newHTTPProber(c.settings, client)
	}
}

// WithClock sets the clock driving the sweep interval.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Checker) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithSweepListener registers fn to be called on the checker goroutine after
// each completed sweep. fn must not block.
func WithSweepListener(fn func(Snapshot)) Option {
	return func(c *Checker) {
		c.listener = fn
	}
}

// New starts a checker for nodes and returns immediately. The first sweep
// begins at once; until it completes every query sees an empty healthy set.
// The checker stops when ctx is cancelled or Close is called.
func New(ctx context.Context, nodes []authority.Authority, cfg Config, opts ...Option) *Checker {
	c := &Checker{
		settings: newSettings(cfg),
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		commands: make(chan command, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.prober = newHTTPProber(c.settings, &http.Client{})

	for _, opt := range opts {
		opt(c)
	}

	c.nodes = dedupe(nodes, c.logger)

	go c.run(ctx)

	return c
}

// Get applies sel to a copy of the healthy list from the last completed
// sweep. It returns ErrStopped if the checker has exited, ctx.Err() if ctx
// ends first, and ErrNoSelection if sel declines or panics.
func (c *Checker) Get(ctx context.Context, sel Selector) (authority.Authority, error) {
	snap, err := c.request(ctx, commandGet)
	if err != nil {
		return "", err
	}
	return c.apply(sel, snap.Healthy)
}

// Snapshot returns the last completed partition together with loop state.
func (c *Checker) Snapshot(ctx context.Context) (Snapshot, error) {
	return c.request(ctx, commandSnapshot)
}

// Nodes returns the configured nodes after de-duplication.
func (c *Checker) Nodes() []authority.Authority {
	return append([]authority.Authority(nil), c.nodes...)
}

// Done is closed once the checker goroutine has exited.
func (c *Checker) Done() <-chan struct{} {
	return c.done
}

// Close stops the checker and waits for its goroutine to exit. In-flight
// probes are cancelled but not waited for.
func (c *Checker) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
	return nil
}

func (c *Checker) request(ctx context.Context, kind commandKind) (Snapshot, error) {
	reply := make(chan Snapshot, 1)

	select {
	case c.commands <- command{kind: kind, reply: reply}:
	case <-c.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-c.done:
		// The loop may have answered right before exiting.
		select {
		case snap := <-reply:
			return snap, nil
		default:
			return Snapshot{}, ErrStopped
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Checker) apply(sel Selector, healthy []authority.Authority) (node authority.Authority, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Selector panicked", slog.Any("panic", r))
			node, err = "", ErrNoSelection
		}
	}()

	node, ok := sel(healthy)
	if !ok {
		return "", ErrNoSelection
	}

	return node, nil
}

func (c *Checker) run(ctx context.Context) {
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := c.clock.NewTicker(c.settings.interval)
	defer ticker.Stop()

	var (
		current   Partition
		sweeps    uint64
		lastSweep time.Time
		state     = StateIdle
		// Buffered so an abandoned sweep can always deliver and exit.
		sweepDone = make(chan []Result, 1)
	)

	snapshot := func(kind commandKind) Snapshot {
		snap := Snapshot{State: state, Sweeps: sweeps, LastSweep: lastSweep}
		if kind == commandGet {
			snap.Healthy = append([]authority.Authority(nil), current.Healthy...)
		} else {
			snap.Partition = current.clone()
		}
		return snap
	}

	startSweep := func() {
		state = StateSweeping
		c.logger.Debug("Starting health sweep", slog.Int("nodes", len(c.nodes)))
		go func() {
			sweepDone <- Sweep(ctx, c.nodes, c.prober, c.settings.limit)
		}()
	}

	c.logger.Info("Health checker started",
		slog.Int("nodes", len(c.nodes)),
		slog.Duration("interval", c.settings.interval))

	startSweep()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped", slog.String("reason", ctx.Err().Error()))
			return

		case <-c.stop:
			c.logger.Info("Health checker stopped", slog.String("reason", "closed"))
			return

		case <-ticker.Chan():
			if state == StateSweeping {
				c.logger.Debug("Sweep still in flight, skipping tick")
				continue
			}
			startSweep()

		case results := <-sweepDone:
			if ctx.Err() != nil {
				continue
			}
			next := NewPartition(results)
			c.logTransitions(current, sweeps == 0, results)

			current = next
			sweeps++
			lastSweep = c.clock.Now()
			state = StateIdle

			if c.listener != nil {
				c.listener(snapshot(commandSnapshot))
			}

		case cmd := <-c.commands:
			cmd.reply <- snapshot(cmd.kind)
		}
	}
}

func (c *Checker) logTransitions(prev Partition, first bool, results []Result) {
	prevHealthy := make(map[authority.Authority]bool, len(prev.Healthy))
	for _, n := range prev.Healthy {
		prevHealthy[n] = true
	}

	for _, r := range results {
		wasHealthy := prevHealthy[r.Authority]

		switch {
		case r.Healthy && !wasHealthy:
			c.logger.Info("Server is back up",
				slog.String("server", r.Authority.String()),
				slog.Int("status", r.StatusCode))

		case !r.Healthy && (wasHealthy || first):
			attrs := []any{slog.String("server", r.Authority.String())}
			if r.StatusCode != 0 {
				attrs = append(attrs, slog.Int("status", r.StatusCode))
			}
			if r.Err != nil {
				attrs = append(attrs, slog.String("error", r.Err.Error()))
			}
			c.logger.Warn("Server is down", attrs...)
		}
	}
}

func dedupe(nodes []authority.Authority, logger *slog.Logger) []authority.Authority {
	seen := make(map[authority.Authority]struct{}, len(nodes))
	out := make([]authority.Authority, 0, len(nodes))

	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			logger.Warn("Ignoring duplicate node", slog.String("server", n.String()))
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	return out
}
