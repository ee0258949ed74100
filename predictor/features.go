package predictor

import (
	"math"
	"time"

	"github.com/cadenza-shell/cadenza-battery/sysfs"
)

// NumFeatures is the length of the model input vector.
const NumFeatures = 8

// Features is the model input vector:
//
//	0. power_watts     -- instantaneous power draw
//	1. hour_sin        -- daily cycle: sin(2π·hour/24)
//	2. hour_cos        -- daily cycle: cos(2π·hour/24)
//	3. day_sin         -- weekly cycle: sin(2π·day/7)
//	4. day_cos         -- weekly cycle: cos(2π·day/7)
//	5. health          -- charge_full / charge_full_design (1.0 if unknown)
//	6. is_charging     -- 1.0 when charging, else 0.0
//	7. percentage      -- charge_now / charge_full (0.5 if unknown)
type Features [NumFeatures]float64

// ExtractFeatures builds the feature vector from a reading at the given
// wall-clock time. The only indispensable input is the power draw; all
// other missing values fall back to defaults.
func ExtractFeatures(r *sysfs.Reading, now time.Time) (Features, bool) {
	var f Features

	power, ok := r.PowerWatts()
	if !ok {
		return f, false
	}
	f[0] = power

	hourSin, hourCos, daySin, dayCos := timeFeatures(now)
	f[1] = hourSin
	f[2] = hourCos
	f[3] = daySin
	f[4] = dayCos

	f[5] = 1.0
	if health, ok := r.Health(); ok {
		f[5] = health
	}

	if r.Status == sysfs.Charging {
		f[6] = 1.0
	}

	f[7] = 0.5
	if pct, ok := r.Percentage(); ok {
		f[7] = pct
	}

	return f, true
}

// ProjectForward recomputes the time features at now+ahead and replaces
// the percentage with newPercentage. Power draw, health, and charging
// direction are held constant over the projection horizon.
func ProjectForward(f Features, now time.Time, ahead time.Duration, newPercentage float64) Features {
	projected := f

	hourSin, hourCos, daySin, dayCos := timeFeatures(now.Add(ahead))
	projected[1] = hourSin
	projected[2] = hourCos
	projected[3] = daySin
	projected[4] = dayCos

	projected[7] = clamp01(newPercentage)

	return projected
}

// timeFeatures encodes the daily and weekly cycles on the unit circle.
// Fractional hours keep sub-hour projections from quantising.
func timeFeatures(t time.Time) (hourSin, hourCos, daySin, dayCos float64) {
	hourFrac := float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0

	hourRad := 2 * math.Pi * hourFrac / 24.0
	hourSin = math.Sin(hourRad)
	hourCos = math.Cos(hourRad)

	// weekday index from Monday
	day := (int(t.Weekday()) + 6) % 7
	dayFrac := float64(day) + hourFrac/24.0

	dayRad := 2 * math.Pi * dayFrac / 7.0
	daySin = math.Sin(dayRad)
	dayCos = math.Cos(dayRad)

	return hourSin, hourCos, daySin, dayCos
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
