// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi implements spec §6's external interfaces (POST /ingest,
// POST /query, GET /stats, GET /health) as a thin chi router in front of
// internal/orchestrator.Orchestrator, which owns every pipeline component.
//
// Grounded on the teacher's pkg/transport: go-chi/chi/v5 is a real teacher
// dependency, used there inside http_metrics_middleware.go purely for its
// route-pattern extraction rather than a literal chi.NewRouter() HTTP
// server (the teacher's actual external surface is gRPC, pkg/transport/
// server.go). This package is the opposite shape: a plain HTTP/JSON
// service, so chi.NewRouter() is the natural home for that same
// route-pattern benefit the teacher's middleware relies on.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kbrag/kbrag/internal/orchestrator"
)

// Server bundles the HTTP router and the orchestrator it serves requests
// from.
type Server struct {
	orch   *orchestrator.Orchestrator
	router chi.Router
	http   *http.Server
}

// New builds a Server listening on addr, with metrics registered against
// reg (pass nil to skip Prometheus registration).
func New(addr string, orch *orchestrator.Orchestrator, reg prometheus.Registerer) *Server {
	s := &Server{orch: orch}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware(newHTTPMetrics(reg)))

	r.Post("/ingest", s.handleIngest)
	r.Post("/query", s.handleQuery)
	r.Get("/stats", s.handleStats)
	r.Get("/health", s.handleHealth)

	if promReg, ok := reg.(*prometheus.Registry); ok {
		r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.router = r
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the underlying handler, mainly for httptest.NewServer in
// tests.
func (s *Server) Router() http.Handler { return s.router }

// Start runs the HTTP server until it errors or is shut down, blocking the
// caller and returning the listen error (nil after a clean Shutdown).
// Callers that need the error on a channel run Start in a goroutine.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
