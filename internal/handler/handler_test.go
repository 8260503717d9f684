package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/backend"
	"github.com/ironmanme/poem-gateway/internal/circuitbreaker"
	"github.com/ironmanme/poem-gateway/internal/handler"
	"github.com/ironmanme/poem-gateway/internal/loadbalancer"
	"github.com/ironmanme/poem-gateway/internal/metrics"
	"github.com/ironmanme/poem-gateway/internal/strategy"
)

var _ = Describe("Handler", func() {
	var (
		h          *handler.LoadBalancerHandler
		health     *fakeHealth
		breakers   *circuitbreaker.Registry
		collector  *metrics.Collector
		upstream   *httptest.Server
		node       authority.Authority
		be         *backend.Backend
		status     int
		seenHeader http.Header
		ctx        context.Context
		cancel     context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		status = http.StatusOK
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenHeader = r.Header.Clone()
			w.WriteHeader(status)
			_, _ = w.Write([]byte("backend1"))
		}))

		u, err := url.Parse(upstream.URL)
		Expect(err).NotTo(HaveOccurred())
		node = authority.MustParse(u.Host)

		be = backend.New("http", node, 1)
		pool := backend.NewPool(be)
		health = &fakeHealth{}
		health.snapshot.Healthy = []authority.Authority{node}
		breakers = circuitbreaker.NewRegistry(2, time.Minute, nil)
		collector = metrics.NewCollector(100, discardLogger, nil)
		collector.Start(ctx)

		lb := loadbalancer.NewLoadBalancer(health, pool, strategy.NewRoundRobinStrategy(), breakers, time.Second)
		h = handler.NewLoadBalancerHandler(discardLogger, lb, breakers, collector)
	})

	AfterEach(func() {
		cancel()
		upstream.Close()
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	Describe("ServeHTTP", func() {
		It("should proxy request to backend", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/test", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("backend1"))
			Expect(w.Header().Get(handler.HeaderBackendServer)).To(Equal(node.String()))
		})

		It("should assign a request id and forward it", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/test", nil))

			id := w.Header().Get(handler.HeaderRequestID)
			Expect(id).NotTo(BeEmpty())
			Expect(seenHeader.Get(handler.HeaderRequestID)).To(Equal(id))
		})

		It("should keep an incoming request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(handler.HeaderRequestID, "abc-123")

			w := serve(req)
			Expect(w.Header().Get(handler.HeaderRequestID)).To(Equal("abc-123"))
			Expect(seenHeader.Get(handler.HeaderRequestID)).To(Equal("abc-123"))
		})

		It("should record request metrics", func() {
			serve(httptest.NewRequest(http.MethodGet, "/test", nil))

			Eventually(func() int64 {
				return collector.Snapshot("round-robin").Backends[node.String()].StatusCodes[http.StatusOK]
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot("round-robin").Backends[node.String()].Requests).To(Equal(int64(1)))
		})

		It("should release the connection slot afterwards", func() {
			serve(httptest.NewRequest(http.MethodGet, "/test", nil))
			Expect(be.ActiveConnections()).To(BeZero())
			Expect(be.EWMATime()).To(BeNumerically(">", 0))
		})

		Context("with no healthy backends", func() {
			BeforeEach(func() {
				health.snapshot.Healthy = nil
			})

			It("should return 503 Service Unavailable", func() {
				w := serve(httptest.NewRequest(http.MethodGet, "/test", nil))
				Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			})
		})

		Context("when the backend fails", func() {
			BeforeEach(func() {
				status = http.StatusInternalServerError
			})

			It("should trip the breaker after repeated errors", func() {
				Expect(serve(httptest.NewRequest(http.MethodGet, "/test", nil)).Code).To(Equal(http.StatusInternalServerError))
				Expect(serve(httptest.NewRequest(http.MethodGet, "/test", nil)).Code).To(Equal(http.StatusInternalServerError))
				Expect(breakers.GetBreaker(node).State()).To(Equal(circuitbreaker.StateOpen))

				Expect(serve(httptest.NewRequest(http.MethodGet, "/test", nil)).Code).To(Equal(http.StatusServiceUnavailable))
			})
		})

		Context("when the backend is unreachable", func() {
			BeforeEach(func() {
				upstream.Close()
			})

			It("should answer with a bad gateway", func() {
				w := serve(httptest.NewRequest(http.MethodGet, "/test", nil))
				Expect(w.Code).To(Equal(http.StatusBadGateway))
			})
		})
	})
})
