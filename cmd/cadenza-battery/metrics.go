/*
cadenza-battery - Battery life prediction service for the Cadenza shell
Copyright (C) 2025, The Cadenza Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadenza-shell/cadenza-battery/batterystate"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_battery_ticks_total",
		Help: "Completed sample-predict-publish cycles",
	})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadenza_battery_persist_failures_total",
		Help: "Failed attempts to save predictor state",
	})

	batteryPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadenza_battery_percentage",
		Help: "Battery charge fraction in [0, 1]",
	})

	batteryCharging = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadenza_battery_charging",
		Help: "Whether the battery is charging (1) or not (0)",
	})

	predictionSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadenza_battery_prediction_seconds",
		Help: "Predicted time to empty or full in seconds",
	})

	predictionConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadenza_battery_prediction_confidence",
		Help: "Confidence of the predicted time in [0, 1]",
	})

	kernelEstimateSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadenza_battery_kernel_estimate_seconds",
		Help: "Kernel time to empty or full estimate in seconds",
	})
)

func observeState(state batterystate.BatteryState) {
	batteryPercentage.Set(state.Percentage)
	if state.Charging {
		batteryCharging.Set(1)
	} else {
		batteryCharging.Set(0)
	}
	predictionSeconds.Set(state.TimeRemainingSmart.Seconds())
	predictionConfidence.Set(state.Confidence)
	kernelEstimateSeconds.Set(state.TimeRemainingKernel.Seconds())
}

func startMetricsServer(addr string) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Metrics listening on ", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("Metrics server stopped: %v", err)
		}
	}()
}
