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

package obslog

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StageMetrics tracks per-stage timing and counters for one pipeline stage
// (extract, chunk, embed, vectorindex, retrieve, generate, cache). One
// instance is created per stage and registered against the registry passed
// to NewStageMetrics (a nil registry skips registration).
type StageMetrics struct {
	stage string

	calls   prometheus.Counter
	errors  prometheus.Counter
	latency prometheus.Histogram

	mu          sync.Mutex
	lastLatency time.Duration
}

// NewStageMetrics creates and registers the counters/histogram for a stage.
// Registration failures (duplicate registration across tests) are ignored,
// matching the teacher's tolerant metrics-setup style.
func NewStageMetrics(reg prometheus.Registerer, stage string) *StageMetrics {
	m := &StageMetrics{
		stage: stage,
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: stage,
			Name:      "calls_total",
			Help:      "Total calls into the " + stage + " stage.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: stage,
			Name:      "errors_total",
			Help:      "Total errors raised by the " + stage + " stage.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kbrag",
			Subsystem: stage,
			Name:      "latency_seconds",
			Help:      "Latency of the " + stage + " stage, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		_ = reg.Register(m.calls)
		_ = reg.Register(m.errors)
		_ = reg.Register(m.latency)
	}

	return m
}

// Observe records one call's outcome and latency.
func (m *StageMetrics) Observe(d time.Duration, err error) {
	m.calls.Inc()
	if err != nil {
		m.errors.Inc()
	}
	m.latency.Observe(d.Seconds())

	m.mu.Lock()
	m.lastLatency = d
	m.mu.Unlock()
}

// LastLatency returns the latency of the most recent call, for /stats.
func (m *StageMetrics) LastLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLatency
}

// Track wraps fn, recording its latency and error outcome against m.
func Track[T any](m *StageMetrics, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	m.Observe(time.Since(start), err)
	return result, err
}

// Registry bundles one StageMetrics per pipeline stage so the orchestrator
// and /stats handler can reach them by name.
type Registry struct {
	Extract      *StageMetrics
	Chunk        *StageMetrics
	Embed        *StageMetrics
	VectorIndex  *StageMetrics
	KeywordIndex *StageMetrics
	Retrieve     *StageMetrics
	Generate     *StageMetrics
	Cache        *StageMetrics
}

// LastLatencies returns the most recent observed latency for every stage, in
// seconds, keyed by stage name. Used by GET /stats.
func (r *Registry) LastLatencies() map[string]float64 {
	return map[string]float64{
		"extract":      r.Extract.LastLatency().Seconds(),
		"chunk":        r.Chunk.LastLatency().Seconds(),
		"embed":        r.Embed.LastLatency().Seconds(),
		"vectorindex":  r.VectorIndex.LastLatency().Seconds(),
		"keywordindex": r.KeywordIndex.LastLatency().Seconds(),
		"retrieve":     r.Retrieve.LastLatency().Seconds(),
		"generate":     r.Generate.LastLatency().Seconds(),
		"cache":        r.Cache.LastLatency().Seconds(),
	}
}

// NewRegistry builds a Registry with one StageMetrics per stage, all
// registered against reg (pass nil to skip Prometheus registration, e.g. in
// unit tests that construct multiple registries in the same process).
func NewRegistry(reg prometheus.Registerer) *Registry {
	return &Registry{
		Extract:      NewStageMetrics(reg, "extract"),
		Chunk:        NewStageMetrics(reg, "chunk"),
		Embed:        NewStageMetrics(reg, "embed"),
		VectorIndex:  NewStageMetrics(reg, "vectorindex"),
		KeywordIndex: NewStageMetrics(reg, "keywordindex"),
		Retrieve:     NewStageMetrics(reg, "retrieve"),
		Generate:     NewStageMetrics(reg, "generate"),
		Cache:        NewStageMetrics(reg, "cache"),
	}
}
