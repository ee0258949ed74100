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

// Package predictor implements an online battery-life estimator. Two
// recursive-least-squares models (one per charge direction) learn power
// draw from time-of-day and battery features, with EWMA accumulators as
// fallbacks and a half-hour-of-week usage profile as a last resort.
package predictor

import (
	"time"

	"github.com/cadenza-shell/cadenza-battery/sysfs"
)

const (
	defaultEWMAAlpha = 0.3

	// outlierFactor flags samples more than this multiple of the running
	// average; outlierAlpha is the damped smoothing used for them.
	outlierFactor = 3.0
	outlierAlpha  = 0.05

	// voltageAlpha smooths the terminal voltage used for capacity
	// estimation.
	voltageAlpha = 0.1

	profileAlpha        = 0.1
	profileDefaultPower = 10.0

	// minPredictPower floors model output during prediction so a brief
	// near-zero estimate cannot produce runaway times.
	minPredictPower = 0.5

	integrationStep     = 900 * time.Second
	maxIntegrationSteps = 4 * 24 * 7 // one week of 15-minute steps
)

// Predictor estimates time-to-empty and time-to-full from periodic
// battery readings. It is not safe for concurrent use; the watcher loop
// owns it exclusively.
type Predictor struct {
	discharge *RLSModel
	charge    *RLSModel

	ewmaDischarge ewma
	ewmaCharge    ewma
	ewmaAlpha     float64

	// smoothedVoltage tracks the terminal voltage in µV across ticks,
	// including outlier ticks.
	smoothedVoltage ewma

	profile *UsageProfile

	now func() time.Time
}

// New creates a predictor with the default learning parameters.
func New() *Predictor {
	return NewWithParams(defaultLambda, defaultInitialVariance, defaultEWMAAlpha)
}

// NewWithParams creates a predictor with explicit RLS and EWMA
// parameters.
func NewWithParams(lambda, initialVariance, ewmaAlpha float64) *Predictor {
	return &Predictor{
		discharge: NewRLSModel(lambda, initialVariance),
		charge:    NewRLSModel(lambda, initialVariance),
		ewmaAlpha: ewmaAlpha,
		profile:   NewUsageProfile(profileAlpha, profileDefaultPower),
		now:       time.Now,
	}
}

// Update trains the predictor on one reading. Exactly one direction's
// EWMA and model are touched per tick; an outlier sample moves only the
// EWMA, with damped smoothing, and skips the model entirely.
func (p *Predictor) Update(r *sysfs.Reading) {
	power, ok := r.PowerWatts()
	if !ok {
		return
	}

	// voltage smoothing happens on every tick, outlier or not
	if r.VoltageNow != nil {
		p.smoothedVoltage.update(float64(*r.VoltageNow), voltageAlpha)
	}

	charging := r.Status == sysfs.Charging
	avg := &p.ewmaDischarge
	if charging {
		avg = &p.ewmaCharge
	}

	if avg.isOutlier(power) {
		avg.update(power, outlierAlpha)
		return
	}
	avg.update(power, p.ewmaAlpha)

	features, ok := ExtractFeatures(r, p.now())
	if !ok {
		return
	}
	if charging {
		p.charge.Update(features, power)
	} else {
		p.discharge.Update(features, power)
		p.profile.Update(p.now(), power)
	}
}

// PredictTimeRemaining estimates time to empty (or to full when
// charging) and a confidence in [0, 1]. It returns false when no
// strategy can produce an estimate.
func (p *Predictor) PredictTimeRemaining(r *sysfs.Reading) (time.Duration, float64, bool) {
	if r.Status == sysfs.Full {
		return 0, 1.0, true
	}

	features, ok := ExtractFeatures(r, p.now())
	if !ok {
		return 0, 0, false
	}

	charging := r.Status == sysfs.Charging
	percentage := features[7]
	if !charging && percentage <= 0.01 {
		return 0, 1.0, true
	}

	capacityWh, ok := p.capacityWh(r)
	if !ok {
		return 0, 0, false
	}

	if charging {
		return p.timeToFull(features, percentage, capacityWh)
	}
	return p.timeToEmpty(features, percentage, capacityWh)
}

// IsTrained reports whether the model for the given direction has seen
// enough samples.
func (p *Predictor) IsTrained(charging bool) bool {
	if charging {
		return p.charge.IsTrained()
	}
	return p.discharge.IsTrained()
}

// capacityWh estimates the full-charge capacity in watt-hours,
// preferring the smoothed voltage over the instantaneous one.
func (p *Predictor) capacityWh(r *sysfs.Reading) (float64, bool) {
	if r.ChargeFull == nil {
		return 0, false
	}

	var voltage float64
	switch {
	case p.smoothedVoltage.valid:
		voltage = p.smoothedVoltage.value
	case r.VoltageNow != nil:
		voltage = float64(*r.VoltageNow)
	default:
		return 0, false
	}

	// µAh × µV × 1e-12 = Wh
	return float64(*r.ChargeFull) * voltage / 1e12, true
}

func (p *Predictor) timeToEmpty(features Features, percentage, capacityWh float64) (time.Duration, float64, bool) {
	remainingWh := capacityWh * percentage

	if p.discharge.IsTrained() {
		if d, conf, ok := p.integrate(p.discharge, features, remainingWh, capacityWh, false); ok {
			return d, conf, true
		}
		power := max(p.discharge.Predict(features), minPredictPower)
		return hoursToDuration(remainingWh / power), 0.7, true
	}

	if p.ewmaDischarge.valid {
		power := max(p.ewmaDischarge.value, minPredictPower)
		return hoursToDuration(remainingWh / power), 0.5, true
	}

	if conf := p.profile.Confidence(p.now()); conf > 0 {
		power := max(p.profile.PowerAt(p.now(), 0), minPredictPower)
		return hoursToDuration(remainingWh / power), conf * 0.4, true
	}

	return 0, 0, false
}

func (p *Predictor) timeToFull(features Features, percentage, capacityWh float64) (time.Duration, float64, bool) {
	currentWh := capacityWh * percentage

	if p.charge.IsTrained() {
		if d, conf, ok := p.integrate(p.charge, features, currentWh, capacityWh, true); ok {
			return d, conf, true
		}
		power := max(p.charge.Predict(features), minPredictPower)
		return hoursToDuration((capacityWh - currentWh) / power), 0.7, true
	}

	if p.ewmaCharge.valid {
		power := max(p.ewmaCharge.value, minPredictPower)
		return hoursToDuration((capacityWh - currentWh) / power), 0.5, true
	}

	return 0, 0, false
}

// integrate simulates future energy flow in fixed steps, predicting
// power from features projected to each step's wall-clock time. The
// terminal step is interpolated. Returns false if the simulation does
// not terminate within a week, in which case the caller falls through
// to the next strategy.
func (p *Predictor) integrate(model *RLSModel, features Features, startWh, capacityWh float64, charging bool) (time.Duration, float64, bool) {
	stepHours := integrationStep.Hours()
	now := p.now()

	energy := startWh
	for i := 1; i <= maxIntegrationSteps; i++ {
		elapsed := time.Duration(i) * integrationStep

		projected := ProjectForward(features, now, elapsed, energy/capacityWh)
		power := max(model.Predict(projected), minPredictPower)
		deltaWh := power * stepHours

		var overshoot float64
		if charging {
			energy += deltaWh
			if energy < capacityWh {
				continue
			}
			overshoot = energy - capacityWh
		} else {
			energy -= deltaWh
			if energy > 0 {
				continue
			}
			overshoot = -energy
		}

		fraction := clamp01(1 - overshoot/deltaWh)
		final := elapsed - integrationStep + time.Duration(fraction*float64(integrationStep))

		conf := float64(model.SampleCount()) / 50.0
		if conf > 1 {
			conf = 1
		}
		return final, conf * 0.9, true
	}

	return 0, 0, false
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
