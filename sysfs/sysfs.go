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

// Package sysfs reads battery data from the kernel power-supply
// pseudo-filesystem.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPowerSupplyPath is where the kernel exposes power supply devices.
const DefaultPowerSupplyPath = "/sys/class/power_supply"

// ErrUnavailable is returned when the battery cannot be read this tick.
// current_now is the one attribute the predictor cannot work without.
var ErrUnavailable = errors.New("battery reading unavailable")

// ErrNoBattery is returned when no device of type "Battery" exists under
// the power-supply root.
var ErrNoBattery = errors.New("no battery device found")

// Status is the charging status reported by the kernel.
type Status int

const (
	Discharging Status = iota
	Charging
	Full
	NotCharging
)

func (s Status) String() string {
	switch s {
	case Charging:
		return "Charging"
	case Full:
		return "Full"
	case NotCharging:
		return "Not charging"
	default:
		return "Discharging"
	}
}

// ParseStatus maps the kernel status string to a Status. Anything
// unrecognised is treated as Discharging, the safe default.
func ParseStatus(s string) Status {
	switch strings.TrimSpace(s) {
	case "Charging":
		return Charging
	case "Discharging":
		return Discharging
	case "Full":
		return Full
	case "Not charging":
		return NotCharging
	default:
		return Discharging
	}
}

// Reading is one raw sample from the battery. Fields the kernel did not
// expose, or that failed to parse, are nil.
type Reading struct {
	// ChargeNow is the current charge in µAh.
	ChargeNow *uint64

	// ChargeFull is the last full charge in µAh.
	ChargeFull *uint64

	// ChargeFullDesign is the design capacity in µAh.
	ChargeFullDesign *uint64

	// CurrentNow is the current draw in µA. The kernel reports it signed;
	// the sign is discarded before use.
	CurrentNow *int64

	// VoltageNow is the terminal voltage in µV.
	VoltageNow *uint64

	Status Status
}

// PowerWatts is the instantaneous power draw: voltage × |current| × 1e-12.
func (r *Reading) PowerWatts() (float64, bool) {
	if r.VoltageNow == nil || r.CurrentNow == nil {
		return 0, false
	}
	current := *r.CurrentNow
	if current < 0 {
		current = -current
	}
	return float64(*r.VoltageNow) * float64(current) / 1e12, true
}

// Percentage is charge_now / charge_full clamped to [0, 1].
func (r *Reading) Percentage() (float64, bool) {
	if r.ChargeNow == nil || r.ChargeFull == nil || *r.ChargeFull == 0 {
		return 0, false
	}
	return clamp01(float64(*r.ChargeNow) / float64(*r.ChargeFull)), true
}

// Health is charge_full / charge_full_design clamped to [0, 1].
func (r *Reading) Health() (float64, bool) {
	if r.ChargeFull == nil || r.ChargeFullDesign == nil || *r.ChargeFullDesign == 0 {
		return 0, false
	}
	return clamp01(float64(*r.ChargeFull) / float64(*r.ChargeFullDesign)), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Battery is a discovered battery device. The device path is cached at
// discovery time.
type Battery struct {
	path string
	log  *logrus.Logger
}

// FindBattery scans root for the first device whose type attribute is
// "Battery" (case-insensitive) and caches its path.
func FindBattery(root string, log *logrus.Logger) (*Battery, error) {
	if log == nil {
		log = logrus.New()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading power supply directory: %w", err)
	}
	for _, entry := range entries {
		devPath := filepath.Join(root, entry.Name())
		data, err := os.ReadFile(filepath.Join(devPath, "type"))
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(data)), "Battery") {
			log.Debugf("Found battery device at %s", devPath)
			return &Battery{path: devPath, log: log}, nil
		}
	}
	return nil, ErrNoBattery
}

// Path returns the cached device directory.
func (b *Battery) Path() string {
	return b.path
}

// StatusPath returns the status pseudo-file, the one worth watching for
// charge/discharge transitions.
func (b *Battery) StatusPath() string {
	return filepath.Join(b.path, "status")
}

// Read takes one sample. current_now is the only critical attribute; if it
// cannot be read, ErrUnavailable is returned. Everything else is read
// best-effort and left nil when missing or malformed.
func (b *Battery) Read() (*Reading, error) {
	current, ok := b.readInt("current_now")
	if !ok {
		return nil, ErrUnavailable
	}

	r := &Reading{
		CurrentNow: &current,
		VoltageNow: b.readUint("voltage_now"),
		ChargeNow:  b.readUint("charge_now"),
		ChargeFull: b.readUint("charge_full"),
	}
	r.ChargeFullDesign = b.readUint("charge_full_design")

	// Some firmware exports energy_* (µWh) instead of charge_* (µAh).
	// Convert using the terminal voltage so everything downstream sees µAh.
	if r.VoltageNow != nil && *r.VoltageNow > 0 {
		if r.ChargeNow == nil {
			if energy := b.readUint("energy_now"); energy != nil {
				r.ChargeNow = microWattHoursToMicroAmpHours(*energy, *r.VoltageNow)
			}
		}
		if r.ChargeFull == nil {
			if energy := b.readUint("energy_full"); energy != nil {
				r.ChargeFull = microWattHoursToMicroAmpHours(*energy, *r.VoltageNow)
			}
		}
		if r.ChargeFullDesign == nil {
			if energy := b.readUint("energy_full_design"); energy != nil {
				r.ChargeFullDesign = microWattHoursToMicroAmpHours(*energy, *r.VoltageNow)
			}
		}
	}

	status, err := os.ReadFile(filepath.Join(b.path, "status"))
	if err != nil {
		b.log.Debugf("Could not read battery status: %v", err)
		r.Status = Discharging
	} else {
		r.Status = ParseStatus(string(status))
	}

	return r, nil
}

// KernelEstimate returns the kernel's own time-to-empty (or time-to-full
// when charging) estimate. It prefers the time_to_*_now attributes and
// falls back to naive charge/current arithmetic.
func (b *Battery) KernelEstimate(r *Reading) (time.Duration, error) {
	if r.Status == Full {
		return 0, nil
	}

	attr := "time_to_empty_now"
	if r.Status == Charging {
		attr = "time_to_full_now"
	}
	if secs := b.readUint(attr); secs != nil {
		return time.Duration(*secs) * time.Second, nil
	}

	if r.CurrentNow == nil || *r.CurrentNow == 0 {
		return 0, fmt.Errorf("no %s attribute and no usable current_now", attr)
	}
	current := *r.CurrentNow
	if current < 0 {
		current = -current
	}

	var chargeMicroAmpHours float64
	switch r.Status {
	case Charging:
		if r.ChargeNow == nil || r.ChargeFull == nil {
			return 0, errors.New("charge attributes unavailable for kernel estimate")
		}
		if *r.ChargeNow >= *r.ChargeFull {
			return 0, nil
		}
		chargeMicroAmpHours = float64(*r.ChargeFull - *r.ChargeNow)
	default:
		if r.ChargeNow == nil {
			return 0, errors.New("charge_now unavailable for kernel estimate")
		}
		chargeMicroAmpHours = float64(*r.ChargeNow)
	}

	hours := chargeMicroAmpHours / float64(current)
	return time.Duration(hours * float64(time.Hour)), nil
}

func (b *Battery) readUint(attr string) *uint64 {
	data, err := os.ReadFile(filepath.Join(b.path, attr))
	if err != nil {
		return nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		b.log.Debugf("Could not parse %s: %v", attr, err)
		return nil
	}
	return &v
}

func (b *Battery) readInt(attr string) (int64, bool) {
	data, err := os.ReadFile(filepath.Join(b.path, attr))
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		b.log.Debugf("Could not parse %s: %v", attr, err)
		return 0, false
	}
	return v, true
}

func microWattHoursToMicroAmpHours(energyMicroWh, voltageMicroV uint64) *uint64 {
	// µWh / µV = Ah, so scale back up to µAh.
	v := uint64(float64(energyMicroWh) / float64(voltageMicroV) * 1e6)
	return &v
}
