package httpserver_test

import (
	"context"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ironmanme/poem-gateway/internal/httpserver"
	"github.com/ironmanme/poem-gateway/pkg/logger"
)

var _ = Describe("HTTP Server", func() {
	var log = logger.Nop()

	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	DescribeTable("server creation",
		func(addr string, valid bool) {
			srv, err := httpserver.New(addr, noop, log)
			if valid {
				Expect(err).NotTo(HaveOccurred())
				Expect(srv).NotTo(BeNil())
			} else {
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			}
		},
		Entry("host and port", "localhost:9999", true),
		Entry("IP address", "127.0.0.1:9999", true),
		Entry("port only", ":9999", true),
		Entry("too many colons", "invalid:host:port", false),
		Entry("missing port", "localhost", false),
		Entry("port out of range", "localhost:70000", false),
		Entry("empty", "", false),
	)

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
			}
		})

		It("starts and handles requests", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("test"))
			})
			var err error
			testServer, err = httpserver.New("127.0.0.1:19999", handler, log)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				_ = testServer.Start()
			}()

			var resp *http.Response
			Eventually(func() error {
				resp, err = http.Get("http://127.0.0.1:19999")
				return err
			}).Should(Succeed())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("test"))
		})

		It("shuts down gracefully", func() {
			var err error
			testServer, err = httpserver.New("127.0.0.1:19998", noop, log)
			Expect(err).NotTo(HaveOccurred())

			stopped := make(chan error, 1)
			go func() {
				stopped <- testServer.Start()
			}()
			Eventually(func() error {
				resp, err := http.Get("http://127.0.0.1:19998")
				if err == nil {
					resp.Body.Close()
				}
				return err
			}).Should(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(testServer.Shutdown(ctx)).To(Succeed())
			Eventually(stopped).Should(Receive(BeNil()))
		})
	})
})
