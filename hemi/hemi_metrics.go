// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Metrics of the engine, kept in a registry of its own.

package hemi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "webserv"

var (
	metricsRegistry = prometheus.NewRegistry()

	requestsParsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "requests_parsed_total",
		Help:      "Requests parsed completely, by method.",
	}, []string{"method"})
	parseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "parse_failures_total",
		Help:      "Requests that failed to parse, by error kind.",
	}, []string{"kind"})
	taskOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "task_outcomes_total",
		Help:      "Finished handler tasks, by handler kind and result.",
	}, []string{"handler", "result"})
	responsesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "responses_total",
		Help:      "Responses queued for sending, by status class.",
	}, []string{"class"})
	openConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "open_connections",
		Help:      "Client connections currently open.",
	})
	cgiDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "cgi_duration_seconds",
		Help:      "Time from spawning a CGI program to its exit.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func init() {
	metricsRegistry.MustRegister(
		requestsParsed,
		parseFailures,
		taskOutcomes,
		responsesSent,
		openConnections,
		cgiDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MetricsGatherer is what the metrics endpoint serves.
func MetricsGatherer() prometheus.Gatherer { return metricsRegistry }

var statusClasses = [...]string{"1xx", "2xx", "3xx", "4xx", "5xx"}

func statusClass(status int16) string {
	if i := int(status)/100 - 1; i >= 0 && i < len(statusClasses) {
		return statusClasses[i]
	}
	return "other"
}
