// Package pool models the three consumable gauges tracked per character
// during play: health, energy, and effort.
//
// Pools are value types mutated through pure functions. Consume operations
// clamp at a floor of zero; no structural ceiling exists so a current value
// may exceed its derived maximum to represent temporary overcharge.
package pool

import (
	apperrors "github.com/veilbound/companion/internal/platform/errors"
)

// Field identifies one of the three consumable gauges.
type Field string

const (
	// FieldHealth is the health gauge (wire name "pv").
	FieldHealth Field = "pv"
	// FieldEnergy is the energy gauge (wire name "ce").
	FieldEnergy Field = "ce"
	// FieldEffort is the effort gauge (wire name "pe").
	FieldEffort Field = "pe"
)

var (
	// ErrNegativeAmount indicates a consume amount below zero.
	ErrNegativeAmount = apperrors.New(apperrors.CodePoolNegativeAmount, "amount must be zero or greater")
	// ErrUnknownField indicates a field outside pv/ce/pe.
	ErrUnknownField = apperrors.New(apperrors.CodePoolUnknownField, "unknown resource field")
)

// Pool holds the current values of the three gauges.
type Pool struct {
	Health int
	Energy int
	Effort int
}

// Maxima holds the derived maximum reference for each gauge.
// Maxima are computed from character attributes and level and are never
// mutated by pool operations.
type Maxima struct {
	Health int
	Energy int
	Effort int
}

// Get returns the current value of the given field.
func (p Pool) Get(field Field) (int, error) {
	switch field {
	case FieldHealth:
		return p.Health, nil
	case FieldEnergy:
		return p.Energy, nil
	case FieldEffort:
		return p.Effort, nil
	}
	return 0, ErrUnknownField
}

// Get returns the maximum value of the given field.
func (m Maxima) Get(field Field) (int, error) {
	switch field {
	case FieldHealth:
		return m.Health, nil
	case FieldEnergy:
		return m.Energy, nil
	case FieldEffort:
		return m.Effort, nil
	}
	return 0, ErrUnknownField
}

// Consume reduces field by amount, flooring at zero. Over-consumption clamps
// silently rather than failing; callers that need an affordability gate must
// check the current value first.
func Consume(p Pool, field Field, amount int) (Pool, error) {
	if amount < 0 {
		return Pool{}, ErrNegativeAmount
	}
	current, err := p.Get(field)
	if err != nil {
		return Pool{}, err
	}
	next := current - amount
	if next < 0 {
		next = 0
	}
	return p.with(field, next), nil
}

// SetCurrent sets field directly, flooring at zero. Values above the derived
// maximum are allowed so manual corrections can express overcharge.
func SetCurrent(p Pool, field Field, value int) (Pool, error) {
	if _, err := p.Get(field); err != nil {
		return Pool{}, err
	}
	if value < 0 {
		value = 0
	}
	return p.with(field, value), nil
}

// ReconcileToMaxima aligns a pool with its derived maxima on character
// (re)selection. An all-zero pool is read as a fresh load rather than a
// genuine zero-health state and is initialized to the maxima. Otherwise each
// field is clamped down only where it exceeds its maximum (a decreased
// maximum after a level-down); values below maximum are never raised.
func ReconcileToMaxima(p Pool, m Maxima) Pool {
	if p.Health == 0 && p.Energy == 0 && p.Effort == 0 {
		return Pool{Health: m.Health, Energy: m.Energy, Effort: m.Effort}
	}
	out := p
	if out.Health > m.Health {
		out.Health = m.Health
	}
	if out.Energy > m.Energy {
		out.Energy = m.Energy
	}
	if out.Effort > m.Effort {
		out.Effort = m.Effort
	}
	return out
}

func (p Pool) with(field Field, value int) Pool {
	out := p
	switch field {
	case FieldHealth:
		out.Health = value
	case FieldEnergy:
		out.Energy = value
	case FieldEffort:
		out.Effort = value
	}
	return out
}
