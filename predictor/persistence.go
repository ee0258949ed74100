package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateVersion identifies the on-disk layout. A mismatch discards the
// file and the caller starts fresh; there is no migration.
const StateVersion = 0

// ErrStateVersion signals that the persisted state was written by a
// different layout version.
var ErrStateVersion = errors.New("predictor state version mismatch")

const stateFileName = "battery_predictor.json"

type rlsState struct {
	Weights     []float64 `json:"weights"`
	PMatrix     []float64 `json:"p_matrix"`
	Lambda      float64   `json:"lambda"`
	SampleCount uint32    `json:"sample_count"`
}

type predictorState struct {
	Version int `json:"version"`

	Discharge rlsState `json:"discharge"`
	Charge    rlsState `json:"charge"`

	EWMADischarge *float64 `json:"ewma_discharge"`
	EWMACharge    *float64 `json:"ewma_charge"`
	EWMAAlpha     float64  `json:"ewma_alpha"`

	SmoothedVoltage *float64 `json:"smoothed_voltage"`

	ProfileSlots  []float64 `json:"profile_slots"`
	ProfileCounts []uint32  `json:"profile_counts"`
	ProfileAlpha  float64   `json:"profile_alpha"`
}

func stateFromPredictor(p *Predictor) *predictorState {
	s := &predictorState{
		Version:       StateVersion,
		Discharge:     stateFromModel(p.discharge),
		Charge:        stateFromModel(p.charge),
		EWMAAlpha:     p.ewmaAlpha,
		ProfileSlots:  append([]float64(nil), p.profile.slots...),
		ProfileCounts: append([]uint32(nil), p.profile.counts...),
		ProfileAlpha:  p.profile.alpha,
	}
	if p.ewmaDischarge.valid {
		v := p.ewmaDischarge.value
		s.EWMADischarge = &v
	}
	if p.ewmaCharge.valid {
		v := p.ewmaCharge.value
		s.EWMACharge = &v
	}
	if p.smoothedVoltage.valid {
		v := p.smoothedVoltage.value
		s.SmoothedVoltage = &v
	}
	return s
}

func stateFromModel(m *RLSModel) rlsState {
	return rlsState{
		Weights:     append([]float64(nil), m.weights...),
		PMatrix:     append([]float64(nil), m.p...),
		Lambda:      m.lambda,
		SampleCount: m.sampleCount,
	}
}

// toPredictor validates every field before accepting the state. A single
// invalid field rejects the whole load.
func (s *predictorState) toPredictor() (*Predictor, error) {
	if s.Version != StateVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrStateVersion, StateVersion, s.Version)
	}

	discharge, err := s.Discharge.toModel()
	if err != nil {
		return nil, fmt.Errorf("discharge model: %w", err)
	}
	charge, err := s.Charge.toModel()
	if err != nil {
		return nil, fmt.Errorf("charge model: %w", err)
	}

	if s.EWMAAlpha < 0 || s.EWMAAlpha > 1 {
		return nil, fmt.Errorf("invalid ewma_alpha %v", s.EWMAAlpha)
	}
	if s.ProfileAlpha < 0 || s.ProfileAlpha > 1 {
		return nil, fmt.Errorf("invalid profile_alpha %v", s.ProfileAlpha)
	}
	if len(s.ProfileSlots) != numProfileSlots {
		return nil, fmt.Errorf("invalid profile_slots length: expected %d, got %d", numProfileSlots, len(s.ProfileSlots))
	}
	if len(s.ProfileCounts) != numProfileSlots {
		return nil, fmt.Errorf("invalid profile_counts length: expected %d, got %d", numProfileSlots, len(s.ProfileCounts))
	}

	p := &Predictor{
		discharge: discharge,
		charge:    charge,
		ewmaAlpha: s.EWMAAlpha,
		profile: &UsageProfile{
			slots:  append([]float64(nil), s.ProfileSlots...),
			counts: append([]uint32(nil), s.ProfileCounts...),
			alpha:  s.ProfileAlpha,
		},
		now: time.Now,
	}
	if s.EWMADischarge != nil {
		p.ewmaDischarge = ewma{value: *s.EWMADischarge, valid: true}
	}
	if s.EWMACharge != nil {
		p.ewmaCharge = ewma{value: *s.EWMACharge, valid: true}
	}
	if s.SmoothedVoltage != nil {
		p.smoothedVoltage = ewma{value: *s.SmoothedVoltage, valid: true}
	}
	return p, nil
}

func (s *rlsState) toModel() (*RLSModel, error) {
	if len(s.Weights) != NumFeatures {
		return nil, fmt.Errorf("invalid weights length: expected %d, got %d", NumFeatures, len(s.Weights))
	}
	if len(s.PMatrix) != NumFeatures*NumFeatures {
		return nil, fmt.Errorf("invalid p_matrix length: expected %d, got %d", NumFeatures*NumFeatures, len(s.PMatrix))
	}
	if s.Lambda < 0 || s.Lambda > 1 {
		return nil, fmt.Errorf("invalid lambda %v", s.Lambda)
	}
	return &RLSModel{
		weights:     append([]float64(nil), s.Weights...),
		p:           append([]float64(nil), s.PMatrix...),
		lambda:      s.Lambda,
		sampleCount: s.SampleCount,
	}, nil
}

// Save writes predictor state to path, creating parent directories on
// demand. The write is a plain overwrite; a corrupt file just triggers
// the discard path on the next startup.
func Save(p *Predictor, path string) error {
	data, err := json.MarshalIndent(stateFromPredictor(p), "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling predictor state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing predictor state: %w", err)
	}
	return nil
}

// Load reads predictor state from path. Any validation failure, version
// mismatch included, returns an error; the caller should start with a
// fresh predictor.
func Load(path string) (*Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading predictor state: %w", err)
	}
	var state predictorState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing predictor state: %w", err)
	}
	return state.toPredictor()
}

// DefaultStatePath returns the per-user state file location:
// $XDG_STATE_HOME/cadenza-shell/battery_predictor.json, falling back to
// the per-user data directory.
func DefaultStatePath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "cadenza-shell", stateFileName), nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "cadenza-shell", stateFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding state directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "cadenza-shell", stateFileName), nil
}
