// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "metadht"

var (
	Registry = prometheus.NewRegistry()

	GRPCMetrics = grpcprometheus.NewServerMetrics(
		func(c *prometheus.CounterOpts) {
			c.Namespace = Namespace
		},
	)

	RouterFopTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "router",
		Name:      "fop_total",
		Help:      "fops unwound by the router, by fop and errno",
	}, []string{"fop", "errno"})

	RouterLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "router",
		Name:      "lookup_total",
		Help:      "lookups by outcome: hit, remote or error",
	}, []string{"result"})

	RouterInflightOps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "router",
		Name:      "inflight_ops",
		Help:      "fops holding local operation state",
	})

	RouterOrphanInodes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "router",
		Name:      "orphan_inodes_total",
		Help:      "directory inodes left without a name after a failed namelink",
	})

	SubvolOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "subvol",
		Name:      "op_duration_seconds",
		Help:      "latency of fops issued to a subvolume",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"subvol", "fop"})

	StoreChecksumErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "store",
		Name:      "checksum_errors_total",
		Help:      "records failing checksum verification",
	}, []string{"subvol"})
)

func init() {
	Registry.MustRegister(
		GRPCMetrics,
		RouterFopTotal,
		RouterLookupTotal,
		RouterInflightOps,
		RouterOrphanInodes,
		SubvolOpDuration,
		StoreChecksumErrors,
	)
	GRPCMetrics.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = Namespace
		},
	)
}
