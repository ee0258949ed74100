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

// Package batterystate holds the latest battery snapshot behind a
// reader-writer lock and broadcasts it to subscribers.
package batterystate

import (
	"sync"
	"time"
)

// BatteryState is one published snapshot. It is replaced wholesale on
// every watcher tick.
type BatteryState struct {
	// Percentage is the charge fraction in [0, 1].
	Percentage float64

	Charging bool

	// TimeRemainingKernel is the kernel's own estimate.
	TimeRemainingKernel time.Duration

	// TimeRemainingSmart is the predictor's estimate.
	TimeRemainingSmart time.Duration

	// Confidence of the smart estimate, in [0, 1].
	Confidence float64
}

// Cell is the single in-memory slot for the latest snapshot. The watcher
// is the only writer; readers clone the value under a shared lock, so no
// reader ever observes a torn state.
type Cell struct {
	mu    sync.RWMutex
	state *BatteryState
	subs  []chan BatteryState
}

func NewCell() *Cell {
	return &Cell{}
}

// Set replaces the whole snapshot and notifies subscribers. Slow
// subscribers are not waited on: their pending snapshot is replaced by
// the latest one.
func (c *Cell) Set(state BatteryState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := state
	c.state = &copied

	for _, sub := range c.subs {
		select {
		case sub <- state:
		default:
			select {
			case <-sub:
			default:
			}
			sub <- state
		}
	}
}

// Get returns a copy of the latest snapshot. The second return value is
// false until the service has published at least once.
func (c *Cell) Get() (BatteryState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state == nil {
		return BatteryState{}, false
	}
	return *c.state, true
}

// Subscribe returns a channel that receives one snapshot per Set. Each
// subscriber sees at most one pending snapshot; an unread one is
// overwritten by the next write.
func (c *Cell) Subscribe() <-chan BatteryState {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := make(chan BatteryState, 1)
	c.subs = append(c.subs, sub)
	return sub
}
