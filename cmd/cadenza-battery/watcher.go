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
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cadenza-shell/cadenza-battery/batterystate"
	"github.com/cadenza-shell/cadenza-battery/config"
	"github.com/cadenza-shell/cadenza-battery/predictor"
	"github.com/cadenza-shell/cadenza-battery/sysfs"
)

// watcher drives the sample-predict-publish cycle. It wakes on status
// file changes and on a timeout, whichever comes first.
type watcher struct {
	battery   *sysfs.Battery
	pred      *predictor.Predictor
	cell      *batterystate.Cell
	statePath string
	conf      config.Config

	ticks int
}

func (w *watcher) run(ctx context.Context) {
	var events chan fsnotify.Event
	var watchErrs chan error
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("Could not create filesystem watcher, polling only: %v", err)
	} else {
		defer fsw.Close()
		if err := fsw.Add(w.battery.StatusPath()); err != nil {
			log.Warnf("Could not watch %s, polling only: %v", w.battery.StatusPath(), err)
		} else {
			events = fsw.Events
			watchErrs = fsw.Errors
		}
	}

	w.loop(ctx, events, watchErrs)
}

// loop wakes on a status event or the poll timeout and runs one cycle
// per wake.
func (w *watcher) loop(ctx context.Context, events chan fsnotify.Event, watchErrs chan error) {
	pollInterval := time.Duration(w.conf.PollIntervalSeconds) * time.Second

	w.tick()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				log.Warn("Filesystem watcher died, degrading to pure polling")
				events = nil
				watchErrs = nil
				continue
			}
			// A single write to the status file can produce several
			// notifications. Drain them so one change means one cycle.
			w.drain(events)
		case err, ok := <-watchErrs:
			if !ok {
				log.Warn("Filesystem watcher died, degrading to pure polling")
				events = nil
				watchErrs = nil
				continue
			}
			log.Debugf("Filesystem watcher error: %v", err)
			continue
		case <-time.After(pollInterval):
		}

		w.tick()
	}
}

func (w *watcher) drain(events chan fsnotify.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

// tick runs one sample-predict-publish cycle.
func (w *watcher) tick() {
	r, err := w.battery.Read()
	if err != nil {
		if errors.Is(err, sysfs.ErrUnavailable) {
			log.Debug("Battery unavailable this cycle, skipping")
		} else {
			log.Warnf("Could not read battery: %v", err)
		}
		return
	}

	w.pred.Update(r)

	w.ticks++
	ticksTotal.Inc()
	if w.ticks%w.conf.PersistEveryTicks == 0 {
		if err := predictor.Save(w.pred, w.statePath); err != nil {
			persistFailures.Inc()
			log.Warnf("Could not persist predictor state: %v", err)
		} else {
			log.Debug("Persisted predictor state to ", w.statePath)
		}
	}

	kernel, err := w.battery.KernelEstimate(r)
	if err != nil {
		log.Warnf("Could not compute kernel estimate, skipping publish: %v", err)
		return
	}

	state := batterystate.BatteryState{
		Charging:            r.Status == sysfs.Charging,
		TimeRemainingKernel: kernel,
	}
	if pct, ok := r.Percentage(); ok {
		state.Percentage = pct
	}
	if smart, confidence, ok := w.pred.PredictTimeRemaining(r); ok {
		state.TimeRemainingSmart = smart
		state.Confidence = confidence
	}

	w.cell.Set(state)
	observeState(state)
	log.Debugf("Published state: %.0f%%, %s, smart %s (confidence %.2f), kernel %s",
		state.Percentage*100, r.Status, state.TimeRemainingSmart,
		state.Confidence, state.TimeRemainingKernel)
}
