package healthcheck_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/healthcheck"
)

var _ = Describe("Checker", func() {
	const interval = 5 * time.Second

	var (
		ctx     context.Context
		cancel  context.CancelFunc
		clock   *clockwork.FakeClock
		prober  *scriptedProber
		checker *healthcheck.Checker
		cfg     healthcheck.Config
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		clock = clockwork.NewFakeClock()
		prober = newScriptedProber()
		checker = nil
		cfg = healthcheck.Config{
			Scheme:   healthcheck.SchemeHTTP,
			Path:     "health",
			Interval: interval,
			Status:   []int{http.StatusOK},
		}
	})

	AfterEach(func() {
		if checker != nil {
			Expect(checker.Close()).To(Succeed())
		}
		cancel()
	})

	start := func(all []authority.Authority, opts ...healthcheck.Option) {
		opts = append([]healthcheck.Option{
			healthcheck.WithProber(prober),
			healthcheck.WithClock(clock),
			healthcheck.WithLogger(discardLogger),
		}, opts...)
		checker = healthcheck.New(ctx, all, cfg, opts...)
	}

	sweeps := func() uint64 {
		snap, err := checker.Snapshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		return snap.Sweeps
	}

	state := func() healthcheck.State {
		snap, err := checker.Snapshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		return snap.State
	}

	tick := func() {
		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
		clock.Advance(interval)
	}

	Describe("before the first sweep completes", func() {
		It("should serve an empty healthy set", func() {
			prober.set("a:80", true)
			prober.hold()
			start(nodes("a:80"))

			var seen []authority.Authority
			node, err := checker.Get(ctx, func(healthy []authority.Authority) (authority.Authority, bool) {
				seen = healthy
				return healthcheck.First(healthy)
			})
			Expect(err).To(MatchError(healthcheck.ErrNoSelection))
			Expect(node).To(BeEmpty())
			Expect(seen).To(BeEmpty())

			snap, err := checker.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Sweeps).To(BeZero())
			Expect(snap.State).To(Equal(healthcheck.StateSweeping))
			Expect(snap.Len()).To(BeZero())

			prober.release()
		})

		It("should not block construction", func() {
			prober.hold()
			done := make(chan struct{})
			go func() {
				defer close(done)
				start(nodes("a:80", "b:80"))
			}()
			Eventually(done).Should(BeClosed())
			prober.release()
		})
	})

	Describe("after a sweep", func() {
		It("should partition nodes by probe outcome", func() {
			prober.set("a:80", true)
			prober.set("b:80", true)
			prober.set("c:80", false)
			start(nodes("a:80", "b:80", "c:80"))

			Eventually(sweeps).Should(BeEquivalentTo(1))

			snap, err := checker.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Healthy).To(ConsistOf(nodes("a:80", "b:80")))
			Expect(snap.Unhealthy).To(ConsistOf(nodes("c:80")))
			Expect(snap.State).To(Equal(healthcheck.StateIdle))
			Expect(snap.LastSweep).To(BeTemporally("==", clock.Now()))
		})

		It("should return the first healthy node", func() {
			prober.set("b:80", true)
			start(nodes("a:80", "b:80"))
			Eventually(sweeps).Should(BeEquivalentTo(1))

			node, err := checker.Get(ctx, healthcheck.First)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).To(Equal(authority.Authority("b:80")))
		})

		It("should return no node when none is healthy", func() {
			start(nodes("a:80"))
			Eventually(sweeps).Should(BeEquivalentTo(1))

			_, err := checker.Get(ctx, healthcheck.First)
			Expect(err).To(MatchError(healthcheck.ErrNoSelection))
		})

		It("should hand selectors a private copy", func() {
			prober.set("a:80", true)
			start(nodes("a:80"))
			Eventually(sweeps).Should(BeEquivalentTo(1))

			_, _ = checker.Get(ctx, func(healthy []authority.Authority) (authority.Authority, bool) {
				healthy[0] = "mutated:1"
				return "", false
			})

			node, err := checker.Get(ctx, healthcheck.First)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).To(Equal(authority.Authority("a:80")))
		})
	})

	Describe("periodic sweeps", func() {
		It("should sweep again on every tick", func() {
			start(nodes("a:80"))
			Eventually(sweeps).Should(BeEquivalentTo(1))

			prober.set("a:80", true)
			tick()
			Eventually(sweeps).Should(BeEquivalentTo(2))

			node, err := checker.Get(ctx, healthcheck.First)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).To(Equal(authority.Authority("a:80")))
		})

		It("should keep serving the previous partition while sweeping", func() {
			prober.set("a:80", true)
			prober.set("b:80", true)
			start(nodes("a:80", "b:80"))
			Eventually(sweeps).Should(BeEquivalentTo(1))

			prober.set("a:80", false)
			prober.hold()
			tick()
			Eventually(state).Should(Equal(healthcheck.StateSweeping))

			snap, err := checker.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Sweeps).To(BeEquivalentTo(1))
			Expect(snap.Healthy).To(ConsistOf(nodes("a:80", "b:80")))

			prober.release()
			Eventually(sweeps).Should(BeEquivalentTo(2))

			snap, err = checker.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Healthy).To(ConsistOf(nodes("b:80")))
			Expect(snap.Unhealthy).To(ConsistOf(nodes("a:80")))
		})

		It("should never run overlapping sweeps", func() {
			prober.hold()
			start(nodes("a:80", "b:80"))
			Eventually(prober.calls.Load).Should(BeEquivalentTo(2))

			for i := 0; i < 3; i++ {
				tick()
			}
			Consistently(prober.calls.Load, 100*time.Millisecond).Should(BeEquivalentTo(2))
			Expect(state()).To(Equal(healthcheck.StateSweeping))

			prober.release()
			Eventually(sweeps).Should(BeEquivalentTo(1))
			Expect(prober.calls.Load()).To(BeEquivalentTo(2))

			tick()
			Eventually(sweeps).Should(BeEquivalentTo(2))
			Expect(prober.calls.Load()).To(BeEquivalentTo(4))
		})

		It("should notify the sweep listener", func() {
			prober.set("a:80", true)
			seen := make(chan healthcheck.Snapshot, 4)
			start(nodes("a:80", "b:80"), healthcheck.WithSweepListener(func(s healthcheck.Snapshot) {
				seen <- s
			}))

			var snap healthcheck.Snapshot
			Eventually(seen).Should(Receive(&snap))
			Expect(snap.Sweeps).To(BeEquivalentTo(1))
			Expect(snap.Healthy).To(ConsistOf(nodes("a:80")))
			Expect(snap.Unhealthy).To(ConsistOf(nodes("b:80")))
		})
	})

	Describe("selectors", func() {
		It("should contain a panicking selector", func() {
			prober.set("a:80", true)
			start(nodes("a:80"))
			Eventually(sweeps).Should(BeEquivalentTo(1))

			_, err := checker.Get(ctx, func([]authority.Authority) (authority.Authority, bool) {
				panic("selector bug")
			})
			Expect(err).To(MatchError(healthcheck.ErrNoSelection))

			node, err := checker.Get(ctx, healthcheck.First)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).To(Equal(authority.Authority("a:80")))
		})
	})

	Describe("teardown", func() {
		It("should fail queries after Close instead of hanging", func() {
			start(nodes("a:80"))
			Expect(checker.Close()).To(Succeed())
			Expect(checker.Done()).To(BeClosed())

			_, err := checker.Get(context.Background(), healthcheck.First)
			Expect(err).To(MatchError(healthcheck.ErrStopped))

			_, err = checker.Snapshot(context.Background())
			Expect(err).To(MatchError(healthcheck.ErrStopped))
		})

		It("should allow Close to be called more than once", func() {
			start(nodes("a:80"))
			Expect(checker.Close()).To(Succeed())
			Expect(checker.Close()).To(Succeed())
		})

		It("should stop when the context is cancelled", func() {
			start(nodes("a:80"))
			cancel()
			Eventually(checker.Done()).Should(BeClosed())

			_, err := checker.Get(context.Background(), healthcheck.First)
			Expect(errors.Is(err, healthcheck.ErrStopped)).To(BeTrue())
		})

		It("should not wait for in-flight probes", func() {
			prober.hold()
			start(nodes("a:80"))
			Eventually(prober.calls.Load).Should(BeEquivalentTo(1))

			closed := make(chan struct{})
			go func() {
				defer close(closed)
				_ = checker.Close()
			}()
			Eventually(closed).Should(BeClosed())
			Eventually(prober.inFlight.Load).Should(BeZero())
		})

		It("should honour the caller's deadline", func() {
			start(nodes("a:80"))
			expired, expire := context.WithCancel(context.Background())
			expire()

			Eventually(func() error {
				_, err := checker.Get(expired, healthcheck.First)
				return err
			}).Should(MatchError(context.Canceled))
		})
	})

	It("should ignore duplicate nodes", func() {
		start(nodes("a:80", "b:80", "a:80"))
		Expect(checker.Nodes()).To(Equal(nodes("a:80", "b:80")))

		Eventually(sweeps).Should(BeEquivalentTo(1))
		snap, err := checker.Snapshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Len()).To(Equal(2))
	})

	It("should probe real upstreams over HTTP", func() {
		up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer up.Close()
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer down.Close()

		checker = healthcheck.New(ctx, []authority.Authority{authorityOf(up.URL), authorityOf(down.URL)}, cfg,
			healthcheck.WithClock(clock),
			healthcheck.WithLogger(discardLogger),
			healthcheck.WithHTTPClient(up.Client()))

		Eventually(sweeps).Should(BeEquivalentTo(1))
		snap, err := checker.Snapshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Healthy).To(ConsistOf(authorityOf(up.URL)))
		Expect(snap.Unhealthy).To(ConsistOf(authorityOf(down.URL)))
	})
})
