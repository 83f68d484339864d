// Package sheet derives combat maxima and archetype flags from character
// sheet data. The sheet editors own the authored values; this package only
// computes the references the combat engine consumes.
package sheet

import (
	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/core/textfold"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
)

// ErrInvalidLevel indicates a character level below 1.
var ErrInvalidLevel = apperrors.New(apperrors.CodeSheetInvalidLevel, "character level must be at least 1")

// Attributes is the authored attribute block used by derived maxima.
type Attributes struct {
	Agility   int
	Intellect int
	Vigor     int
	Presence  int
	Strength  int
}

// Profile carries the sheet fields the combat engine reads.
type Profile struct {
	Level      int
	Attributes Attributes
	Class      string
	Origin     string
}

// Base values and per-level growth for derived maxima.
const (
	baseHealth     = 20
	healthPerVigor = 5
	healthPerLevel = 5
	baseEnergy     = 100
	energyPerLevel = 20
	energyPerPres  = 10
	baseEffort     = 2
	effortPerLevel = 1
	effortPerPres  = 1
)

// DeriveMaxima computes the maximum pool values for a profile.
func DeriveMaxima(p Profile) (pool.Maxima, error) {
	if p.Level < 1 {
		return pool.Maxima{}, ErrInvalidLevel
	}
	return pool.Maxima{
		Health: baseHealth + healthPerVigor*p.Attributes.Vigor + healthPerLevel*(p.Level-1),
		Energy: baseEnergy + energyPerLevel*(p.Level-1) + energyPerPres*p.Attributes.Presence,
		Effort: baseEffort + effortPerLevel*p.Level + effortPerPres*p.Attributes.Presence,
	}, nil
}

// restrictedOrigins lists archetypes barred from channeling energy. Members
// never regenerate energy during round advancement; their pool is zeroed
// instead. This is a narrative rule, not an error state.
var restrictedOrigins = map[string]bool{
	"restricao celestial":  true,
	"heavenly restriction": true,
}

// Restricted reports whether the class or origin names a restricted
// archetype. Matching folds case and diacritics.
func Restricted(class, origin string) bool {
	return restrictedOrigins[textfold.Key(class)] || restrictedOrigins[textfold.Key(origin)]
}

// EnergyRegen returns the per-round energy regeneration for a profile:
// level plus presence. Restricted archetypes are handled by the caller via
// Restricted.
func EnergyRegen(level, presence int) int {
	regen := level + presence
	if regen < 0 {
		return 0
	}
	return regen
}
