package mission

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// OnceCooldownDays stands in for "never again"; no elapsed time reaches it.
const OnceCooldownDays = math.MaxInt32

const DefaultElectionPeriodDays = 1460

// CooldownPolicy maps mission frequencies to cooldown lengths.
type CooldownPolicy struct {
	ElectionPeriodDays int
}

func DefaultCooldownPolicy() CooldownPolicy {
	return CooldownPolicy{ElectionPeriodDays: DefaultElectionPeriodDays}
}

func (p CooldownPolicy) FrequencyDays(f Frequency) int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyWeekly:
		return 7
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 90
	case FrequencyYearly:
		return 365
	case FrequencyElectionPeriod:
		if p.ElectionPeriodDays > 0 {
			return p.ElectionPeriodDays
		}
		return DefaultElectionPeriodDays
	default:
		return OnceCooldownDays
	}
}

// EffectiveCooldownDays prefers the mission's explicit override.
func (p CooldownPolicy) EffectiveCooldownDays(m *Mission) int {
	if m.CooldownDays > 0 {
		return m.CooldownDays
	}
	return p.FrequencyDays(m.Frequency)
}

type Eligibility struct {
	Eligible      bool
	RemainingDays int
	CooldownUntil *time.Time
	Permanent     bool
}

// Evaluate applies the cooldown rule for a user whose latest completion of m
// was at last (nil when never completed).
func (p CooldownPolicy) Evaluate(m *Mission, last *time.Time, now time.Time) Eligibility {
	if last == nil {
		return Eligibility{Eligible: true}
	}

	days := p.EffectiveCooldownDays(m)
	if days == OnceCooldownDays {
		return Eligibility{Eligible: false, Permanent: true}
	}

	passed := daysBetween(*last, now)

	until := last.AddDate(0, 0, days)
	if passed >= days {
		return Eligibility{Eligible: true, CooldownUntil: &until}
	}
	return Eligibility{Eligible: false, RemainingDays: days - passed, CooldownUntil: &until}
}

// daysBetween is floor((to - from) / 1 day).
func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}
