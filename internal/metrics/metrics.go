// Copyright 2026 Blink Labs Software
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

// Package metrics exports Prometheus metrics for view evaluation.
package metrics

import (
	"time"

	"github.com/blinklabs-io/lendcalc/internal/market"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lendcalc"

// Metrics are the collectors updated on every evaluation
type Metrics struct {
	evaluations *prometheus.CounterVec
	duration    prometheus.Histogram
	markets     prometheus.Gauge
	positions   prometheus.Gauge
	listings    *prometheus.GaugeVec
	viewErrors  prometheus.Gauge
	registerer  prometheus.Registerer
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "evaluations_total",
			Help:      "Total snapshot evaluations by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "evaluation_duration_seconds",
			Help:      "Time taken to evaluate a snapshot.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		markets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "markets",
			Help:      "Markets summarized in the latest view.",
		}),
		positions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "positions",
			Help:      "User positions in the latest view.",
		}),
		listings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "listings",
			Help:      "Debt marketplace listings in the latest view by kind.",
		}, []string{"kind"}),
		viewErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "errors",
			Help:      "Outputs that could not be computed in the latest view.",
		}),
		registerer: reg,
	}
	for _, c := range []prometheus.Collector{
		m.evaluations,
		m.duration,
		m.markets,
		m.positions,
		m.listings,
		m.viewErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveView records a successful evaluation
func (m *Metrics) ObserveView(view *market.View, elapsed time.Duration) {
	m.evaluations.WithLabelValues("ok").Inc()
	m.duration.Observe(elapsed.Seconds())
	m.markets.Set(float64(len(view.Markets)))
	m.positions.Set(float64(len(view.Positions)))
	counts := map[market.ListingKind]int{
		market.ListingKindLiquidation: 0,
		market.ListingKindBuyout:      0,
	}
	for _, listing := range view.Listings {
		counts[listing.Kind]++
	}
	for kind, count := range counts {
		m.listings.WithLabelValues(kind.String()).Set(float64(count))
	}
	m.viewErrors.Set(float64(len(view.Errors)))
}

// EvaluationFailed records an evaluation that produced no view
func (m *Metrics) EvaluationFailed() {
	m.evaluations.WithLabelValues("error").Inc()
}

// TrackWebSocketClients exports the value of count as the number of
// connected stream clients
func (m *Metrics) TrackWebSocketClients(count func() int) error {
	return m.registerer.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "websocket_clients",
		Help:      "Connected listing stream clients.",
	}, func() float64 {
		return float64(count())
	}))
}
