// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics renders reconciliation observations as Prometheus series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
)

const namespace = "directory_sync"

var _ dirsync.Observer = (*Observer)(nil)

// Observer counts observations on its own registry.
type Observer struct {
	registry *prometheus.Registry

	observations *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	members      *prometheus.CounterVec
	passDuration prometheus.Histogram
	passFailures prometheus.Counter
	lastPass     prometheus.Gauge
}

// NewObserver creates an Observer with a fresh registry that also carries the
// Go and process collectors.
func NewObserver() *Observer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Observer{
		registry: reg,
		observations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_total",
				Help:      "Total number of reconciliation observations",
			},
			[]string{"kind", "directory_id"},
		),
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of change payload dispatches",
			},
			[]string{"directory_id", "operation", "outcome"}, // outcome: success, failure
		),
		members: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatched_members_total",
				Help:      "Total number of member IDs in successful dispatches",
			},
			[]string{"directory_id", "operation"},
		),
		passDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of reconciliation passes in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		passFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pass_failures_total",
				Help:      "Total number of passes with at least one failed directory",
			},
		),
		lastPass: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_pass_completed_timestamp_seconds",
				Help:      "Unix time of the last completed pass",
			},
		),
	}
}

// Observe implements dirsync.Observer.
func (o *Observer) Observe(ctx context.Context, obs *dirsync.Observation) {
	o.observations.WithLabelValues(string(obs.Kind), obs.DirectoryID).Inc()

	switch obs.Kind {
	case dirsync.KindDispatched:
		o.dispatches.WithLabelValues(obs.DirectoryID, string(obs.Operation), "success").Inc()
		o.members.WithLabelValues(obs.DirectoryID, string(obs.Operation)).Add(float64(obs.Count))
	case dirsync.KindDispatchFailed:
		o.dispatches.WithLabelValues(obs.DirectoryID, string(obs.Operation), "failure").Inc()
	case dirsync.KindPassCompleted:
		o.passDuration.Observe(obs.Duration.Seconds())
		o.lastPass.SetToCurrentTime()
		if obs.Err != nil {
			o.passFailures.Inc()
		}
	}
}

// Registry returns the registry of the Observer.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}
