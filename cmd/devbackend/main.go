// Command devbackend is a small upstream for exercising the gateway locally.
// It serves /create-course and a health endpoint whose status can be flipped
// at runtime with POST /toggle-health.
//
// Usage:
//
//	go run ./cmd/devbackend --port 8081
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/ironmanme/poem-gateway/pkg/logger"
)

// Course represents a course entity with unique identifier.
type Course struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ServedBy    string `json:"served_by"`
}

type CreateCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func main() {
	port := pflag.IntP("port", "p", 8081, "port to listen on")
	healthPath := pflag.String("health-path", "/health", "path answered by the health endpoint")
	unhealthy := pflag.Bool("unhealthy", false, "start with a failing health endpoint")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	addr := fmt.Sprintf(":%d", *port)
	log := logger.New(*level, false, "dev").With(slog.String("backend", addr))

	var healthy atomic.Bool
	healthy.Store(!*unhealthy)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /create-course", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		log.Info("Request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("from", r.RemoteAddr),
			slog.String("request_id", r.Header.Get("X-Request-Id")))

		var req CreateCourseRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
		}
		if req.Title == "" {
			req.Title = "Default Course"
		}

		course := Course{
			UUID:        uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			ServedBy:    addr,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"course": course})
	})

	mux.HandleFunc("GET /"+strings.TrimPrefix(*healthPath, "/"), func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /toggle-health", func(w http.ResponseWriter, r *http.Request) {
		now := !healthy.Load()
		healthy.Store(now)
		log.Info("Health toggled", slog.Bool("healthy", now))
		_, _ = fmt.Fprintf(w, "healthy=%t\n", now)
	})

	log.Info("Starting backend")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
