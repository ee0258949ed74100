package predictor

import "time"

// Profile slot layout: 48 half-hour slots per day, Monday first.
const (
	profileSlotsPerDay = 48
	numProfileSlots    = profileSlotsPerDay * 7
)

// UsageProfile tracks average power draw per half-hour-of-week slot.
// It is the last-resort prediction strategy, useful before either RLS
// model has trained and when no EWMA exists for the direction.
type UsageProfile struct {
	// slots holds the EWMA power draw (watts) per slot.
	slots []float64
	// counts holds per-slot sample counts for confidence scoring.
	counts []uint32
	alpha  float64
}

// NewUsageProfile creates a profile with every slot preset to
// defaultPower watts.
func NewUsageProfile(alpha, defaultPower float64) *UsageProfile {
	slots := make([]float64, numProfileSlots)
	for i := range slots {
		slots[i] = defaultPower
	}
	return &UsageProfile{
		slots:  slots,
		counts: make([]uint32, numProfileSlots),
		alpha:  alpha,
	}
}

// Update folds a power observation into the slot for the given time.
func (p *UsageProfile) Update(now time.Time, power float64) {
	idx := slotIndex(now)
	p.slots[idx] = p.alpha*power + (1-p.alpha)*p.slots[idx]
	p.counts[idx]++
}

// PowerAt returns the profiled power draw at now+ahead.
func (p *UsageProfile) PowerAt(now time.Time, ahead time.Duration) float64 {
	return p.slots[slotIndex(now.Add(ahead))]
}

// Confidence scores the current slot from its sample count, saturating
// at 50 samples.
func (p *UsageProfile) Confidence(now time.Time) float64 {
	count := p.counts[slotIndex(now)]
	conf := float64(count) / 50.0
	if conf > 1 {
		return 1
	}
	return conf
}

func slotIndex(t time.Time) int {
	day := (int(t.Weekday()) + 6) % 7 // Monday = 0
	halfHour := 0
	if t.Minute() >= 30 {
		halfHour = 1
	}
	return day*profileSlotsPerDay + t.Hour()*2 + halfHour
}
