package predictor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-shell/cadenza-battery/sysfs"
)

func uintPtr(v uint64) *uint64 { return &v }
func intPtr(v int64) *int64    { return &v }

func makeReading() *sysfs.Reading {
	return &sysfs.Reading{
		ChargeNow:        uintPtr(5000000),
		ChargeFull:       uintPtr(10000000),
		ChargeFullDesign: uintPtr(12000000),
		CurrentNow:       intPtr(2000000),
		VoltageNow:       uintPtr(12000000),
		Status:           sysfs.Discharging,
	}
}

func TestExtractFeatures(t *testing.T) {
	now := time.Date(2025, time.June, 4, 14, 30, 0, 0, time.Local) // a Wednesday
	f, ok := ExtractFeatures(makeReading(), now)
	require.True(t, ok)

	assert.InDelta(t, 24.0, f[0], 0.01) // 12V × 2A
	assert.InDelta(t, 10.0/12.0, f[5], 1e-9)
	assert.Equal(t, 0.0, f[6])
	assert.InDelta(t, 0.5, f[7], 1e-9)
}

func TestExtractFeaturesCharging(t *testing.T) {
	r := makeReading()
	r.Status = sysfs.Charging
	f, ok := ExtractFeatures(r, time.Now())
	require.True(t, ok)
	assert.Equal(t, 1.0, f[6])
}

func TestExtractFeaturesUnitCircle(t *testing.T) {
	times := []time.Time{
		time.Date(2025, time.January, 6, 0, 0, 0, 0, time.Local),
		time.Date(2025, time.March, 15, 9, 45, 12, 0, time.Local),
		time.Date(2025, time.December, 31, 23, 59, 59, 0, time.Local),
	}
	for _, now := range times {
		f, ok := ExtractFeatures(makeReading(), now)
		require.True(t, ok)

		hourSq := f[1]*f[1] + f[2]*f[2]
		assert.InDelta(t, 1.0, hourSq, 1e-3, "hour cycle off unit circle at %v", now)

		daySq := f[3]*f[3] + f[4]*f[4]
		assert.InDelta(t, 1.0, daySq, 1e-3, "day cycle off unit circle at %v", now)
	}
}

func TestExtractFeaturesPowerIndispensable(t *testing.T) {
	r := makeReading()
	r.VoltageNow = nil
	_, ok := ExtractFeatures(r, time.Now())
	assert.False(t, ok)
}

func TestExtractFeaturesDefaults(t *testing.T) {
	r := &sysfs.Reading{
		CurrentNow: intPtr(1000000),
		VoltageNow: uintPtr(12000000),
		Status:     sysfs.Discharging,
	}
	f, ok := ExtractFeatures(r, time.Now())
	require.True(t, ok)
	assert.Equal(t, 1.0, f[5]) // health default
	assert.Equal(t, 0.5, f[7]) // percentage default
}

func TestProjectForwardTimeChanges(t *testing.T) {
	now := time.Date(2025, time.June, 4, 14, 0, 0, 0, time.Local)
	f, ok := ExtractFeatures(makeReading(), now)
	require.True(t, ok)

	projected := ProjectForward(f, now, 6*time.Hour, 0.3)

	timeChanged := projected[1] != f[1] || projected[2] != f[2] ||
		projected[3] != f[3] || projected[4] != f[4]
	assert.True(t, timeChanged, "no time features changed after 6h projection")
	assert.InDelta(t, 0.3, projected[7], 1e-9)
}

func TestProjectForwardStaticFieldsUnchanged(t *testing.T) {
	now := time.Date(2025, time.June, 4, 14, 0, 0, 0, time.Local)
	f, ok := ExtractFeatures(makeReading(), now)
	require.True(t, ok)

	projected := ProjectForward(f, now, time.Hour, 0.45)

	assert.Equal(t, f[0], projected[0]) // power
	assert.Equal(t, f[5], projected[5]) // health
	assert.Equal(t, f[6], projected[6]) // is_charging
}

func TestProjectForwardUnitCircle(t *testing.T) {
	now := time.Date(2025, time.June, 4, 14, 0, 0, 0, time.Local)
	f, ok := ExtractFeatures(makeReading(), now)
	require.True(t, ok)

	projected := ProjectForward(f, now, 13*time.Hour, 0.5)

	assert.InDelta(t, 1.0, projected[1]*projected[1]+projected[2]*projected[2], 1e-3)
	assert.InDelta(t, 1.0, projected[3]*projected[3]+projected[4]*projected[4], 1e-3)
}

func TestProjectForwardPercentageClamped(t *testing.T) {
	now := time.Now()
	f, ok := ExtractFeatures(makeReading(), now)
	require.True(t, ok)

	assert.Equal(t, 0.0, ProjectForward(f, now, time.Hour, -0.2)[7])
	assert.Equal(t, 1.0, ProjectForward(f, now, time.Hour, 1.7)[7])
}
