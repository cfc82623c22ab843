/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package acsmetrics exports the outcome of channel selection runs to
// Prometheus.
package acsmetrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"sapacs/ap_common/acs"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one radio.
type Metrics struct {
	runs      prometheus.Counter
	failures  prometheus.Counter
	duration  prometheus.Histogram
	freq      prometheus.Gauge
	width     prometheus.Gauge
	weight    prometheus.Gauge
	avoided   prometheus.Gauge
	chWeights *prometheus.GaugeVec

	reg *prometheus.Registry
}

// New creates and registers the collectors on a private registry.
func New(iface string) *Metrics {
	labels := prometheus.Labels{"iface": iface}

	m := &Metrics{
		runs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "acs_runs",
				Help:        "Number of channel selection runs.",
				ConstLabels: labels,
			}),
		failures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "acs_failures",
				Help:        "Number of runs that selected no channel.",
				ConstLabels: labels,
			}),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "acs_duration",
				Help:        "Selection run duration in seconds.",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
			}),
		freq: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "acs_selected_freq",
				Help:        "Primary frequency of the last selection, MHz.",
				ConstLabels: labels,
			}),
		width: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "acs_selected_width",
				Help:        "Operating width of the last selection, MHz.",
				ConstLabels: labels,
			}),
		weight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "acs_selected_weight",
				Help:        "Weight of the last selected channel.",
				ConstLabels: labels,
			}),
		avoided: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "acs_avoided_channels",
				Help:        "Number of channels on the avoidance list.",
				ConstLabels: labels,
			}),
		chWeights: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "acs_channel_weight",
				Help:        "Weight of each candidate in the last run, by frequency.",
				ConstLabels: labels,
			},
			[]string{"freq"}),
		reg: prometheus.NewRegistry(),
	}

	m.reg.MustRegister(m.runs, m.failures, m.duration, m.freq, m.width,
		m.weight, m.avoided, m.chWeights)
	return m
}

// Observe records the outcome of one run.
func (m *Metrics) Observe(sel *acs.Selection, err error, elapsed time.Duration,
	avoid *acs.AvoidanceList) {

	m.runs.Inc()
	m.duration.Observe(elapsed.Seconds())
	if avoid != nil {
		m.avoided.Set(float64(avoid.Len()))
	}

	if err != nil || sel == nil {
		m.failures.Inc()
		return
	}

	m.freq.Set(float64(sel.Freq))
	m.width.Set(float64(sel.Width))
	m.weight.Set(float64(sel.Weight))

	m.chWeights.Reset()
	for _, c := range sel.Candidates {
		m.chWeights.WithLabelValues(strconv.Itoa(c.Freq)).
			Set(float64(c.Weight.Value()))
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exports the metrics on addr until the context is canceled or the
// server fails.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(),
			time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return errors.Wrapf(err, "metrics server on %s", addr)
	}
	return nil
}
