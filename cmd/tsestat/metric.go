// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {
}

func outputMetrics(stat sessionStat) {
	var (
		mInfo = prometheus.NewDesc(
			"tse_info",
			"Info metric for the detected TSE",
			[]string{"path", "version", "serial"}, nil,
		)
		mReachable = prometheus.NewDesc(
			"tse_reachable",
			"Boolean describing whether the TSE answered the suspend handshake and the Start and GetPinStates commands",
			[]string{"path"}, nil,
		)
		mPinSet = prometheus.NewDesc(
			"tse_pin_provisioned",
			"Boolean describing whether a given PIN/PUK slot is provisioned",
			[]string{"path", "slot"}, nil,
		)
		mPollRetries = prometheus.NewDesc(
			"tse_readiness_poll_retries",
			"Number of not-ready blocks observed across the transport's lifetime",
			[]string{"path"}, nil,
		)
		mSuspendToggles = prometheus.NewDesc(
			"tse_suspend_toggles",
			"Number of completed suspend-on/suspend-off handshakes",
			[]string{"path"}, nil,
		)
	)

	mc := &metricCollector{}
	reachable := float64(1)
	if stat.Err != nil {
		reachable = 0
	}
	mc.m = append(mc.m, prometheus.MustNewConstMetric(mReachable, prometheus.GaugeValue, reachable, stat.Path))

	if stat.Err == nil {
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mInfo, prometheus.GaugeValue, 1,
			stat.Path, stat.Version, string(stat.Serial)))

		slots := []string{"admin_puk", "admin_pin", "timeadmin_puk", "timeadmin_pin"}
		for i, slot := range slots {
			v := float64(0)
			if stat.PinStates[i] {
				v = 1
			}
			mc.m = append(mc.m, prometheus.MustNewConstMetric(mPinSet, prometheus.GaugeValue, v, stat.Path, slot))
		}

		mc.m = append(mc.m, prometheus.MustNewConstMetric(mPollRetries, prometheus.GaugeValue, float64(stat.PollRetries), stat.Path))
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mSuspendToggles, prometheus.GaugeValue, float64(stat.SuspendToggles), stat.Path))
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(mc)

	mfs, err := reg.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			log.Fatalf("Failed to serialize metrics: %v", err)
		}
	}
}
