package predictor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state", "battery_predictor.json")
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := statePath(t)

	p := newTestPredictor(testTime)
	for i := 0; i < 25; i++ {
		p.Update(dischargingReading(1000000))
	}
	for i := 0; i < 5; i++ {
		p.Update(chargingReading(2000000))
	}

	require.NoError(t, Save(p, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, p.discharge.weights, loaded.discharge.weights)
	assert.Equal(t, p.discharge.p, loaded.discharge.p)
	assert.Equal(t, p.discharge.sampleCount, loaded.discharge.sampleCount)
	assert.Equal(t, p.charge.weights, loaded.charge.weights)
	assert.Equal(t, p.charge.sampleCount, loaded.charge.sampleCount)
	assert.Equal(t, p.ewmaDischarge, loaded.ewmaDischarge)
	assert.Equal(t, p.ewmaCharge, loaded.ewmaCharge)
	assert.Equal(t, p.ewmaAlpha, loaded.ewmaAlpha)
	assert.Equal(t, p.smoothedVoltage, loaded.smoothedVoltage)
	assert.Equal(t, p.profile.slots, loaded.profile.slots)
	assert.Equal(t, p.profile.counts, loaded.profile.counts)
}

func TestPersistenceFreshPredictor(t *testing.T) {
	path := statePath(t)

	require.NoError(t, Save(New(), path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.False(t, loaded.ewmaDischarge.valid)
	assert.False(t, loaded.ewmaCharge.valid)
	assert.False(t, loaded.smoothedVoltage.valid)
	assert.Equal(t, uint32(0), loaded.discharge.SampleCount())
}

func TestPersistenceVersionMismatch(t *testing.T) {
	path := statePath(t)
	require.NoError(t, Save(New(), path))

	// rewrite the version field to a non-matching integer
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["version"] = json.RawMessage("99")
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Load(path)
	assert.ErrorIs(t, err, ErrStateVersion)
}

func TestPersistenceRejectsInvalidFields(t *testing.T) {
	mutations := map[string]func(s *predictorState){
		"short weights":     func(s *predictorState) { s.Discharge.Weights = s.Discharge.Weights[:4] },
		"short p matrix":    func(s *predictorState) { s.Charge.PMatrix = s.Charge.PMatrix[:10] },
		"bad lambda":        func(s *predictorState) { s.Discharge.Lambda = 1.5 },
		"negative lambda":   func(s *predictorState) { s.Charge.Lambda = -0.1 },
		"bad ewma alpha":    func(s *predictorState) { s.EWMAAlpha = 2.0 },
		"bad profile":       func(s *predictorState) { s.ProfileSlots = s.ProfileSlots[:10] },
		"bad profile alpha": func(s *predictorState) { s.ProfileAlpha = -1 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			state := stateFromPredictor(New())
			mutate(state)
			_, err := state.toPredictor()
			assert.Error(t, err)
		})
	}
}

func TestPersistenceCorruptFile(t *testing.T) {
	path := statePath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPersistenceMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadedPredictorKeepsLearning(t *testing.T) {
	path := statePath(t)

	p := newTestPredictor(testTime)
	for i := 0; i < 19; i++ {
		p.Update(dischargingReading(1000000))
	}
	require.NoError(t, Save(p, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	loaded.now = func() time.Time { return testTime }

	require.False(t, loaded.IsTrained(false))
	loaded.Update(dischargingReading(1000000))
	assert.True(t, loaded.IsTrained(false))
}
