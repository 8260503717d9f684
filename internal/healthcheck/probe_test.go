package healthcheck_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/healthcheck"
)

var _ = Describe("HTTPProber", func() {
	var (
		server *httptest.Server
		status int
		delay  time.Duration
		paths  chan string
		cfg    healthcheck.Config
	)

	BeforeEach(func() {
		status = http.StatusOK
		delay = 0
		paths = make(chan string, 10)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths <- r.URL.Path
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-r.Context().Done():
					return
				}
			}
			w.WriteHeader(status)
		}))

		cfg = healthcheck.Config{
			Scheme:  healthcheck.SchemeHTTP,
			Path:    "health",
			Timeout: time.Second,
			Status:  []int{http.StatusOK},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	probe := func() healthcheck.Result {
		prober := healthcheck.NewHTTPProber(cfg, server.Client())
		return prober.Probe(context.Background(), authorityOf(server.URL))
	}

	It("should mark an accepted status as healthy", func() {
		result := probe()
		Expect(result.Healthy).To(BeTrue())
		Expect(result.StatusCode).To(Equal(http.StatusOK))
		Expect(result.Err).NotTo(HaveOccurred())
		Expect(result.Authority).To(Equal(authorityOf(server.URL)))
	})

	It("should probe {scheme}://{authority}/{path}", func() {
		probe()
		Expect(paths).To(Receive(Equal("/health")))
	})

	It("should not double a leading slash in the path", func() {
		cfg.Path = "/ready"
		probe()
		Expect(paths).To(Receive(Equal("/ready")))
	})

	It("should mark an unexpected status as unhealthy", func() {
		status = http.StatusServiceUnavailable
		result := probe()
		Expect(result.Healthy).To(BeFalse())
		Expect(result.StatusCode).To(Equal(http.StatusServiceUnavailable))

		var statusErr *healthcheck.StatusError
		Expect(errors.As(result.Err, &statusErr)).To(BeTrue())
		Expect(statusErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})

	It("should accept any status in the configured set", func() {
		cfg.Status = []int{http.StatusOK, http.StatusNoContent}
		status = http.StatusNoContent
		Expect(probe().Healthy).To(BeTrue())
	})

	It("should default to 200 when no status is configured", func() {
		cfg.Status = nil
		Expect(probe().Healthy).To(BeTrue())
	})

	It("should mark a timed out probe as unhealthy", func() {
		cfg.Timeout = 20 * time.Millisecond
		delay = 500 * time.Millisecond
		result := probe()
		Expect(result.Healthy).To(BeFalse())
		Expect(result.Err).To(HaveOccurred())
	})

	It("should mark a refused connection as unhealthy", func() {
		node := authorityOf(server.URL)
		server.Close()

		prober := healthcheck.NewHTTPProber(cfg, http.DefaultClient)
		result := prober.Probe(context.Background(), node)
		Expect(result.Healthy).To(BeFalse())
		Expect(result.Err).To(HaveOccurred())
	})

	It("should treat an unbuildable url as unhealthy", func() {
		prober := healthcheck.NewHTTPProber(cfg, server.Client())
		result := prober.Probe(context.Background(), authority.Authority("bad host"))
		Expect(result.Healthy).To(BeFalse())
		Expect(result.Err).To(HaveOccurred())
		Expect(paths).NotTo(Receive())
	})

	It("should treat an unsupported scheme as unhealthy", func() {
		cfg.Scheme = healthcheck.Scheme("gopher")
		result := probe()
		Expect(result.Healthy).To(BeFalse())
		Expect(result.Err).To(MatchError(ContainSubstring("unsupported scheme")))
	})
})
