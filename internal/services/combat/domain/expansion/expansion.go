// Package expansion models the domain expansion combat mode: a timed state
// machine with an activation cost, a bounded round duration, escalating
// per-round maintenance, and a mandatory post-closure exhaustion penalty.
package expansion

import (
	"strconv"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
)

// Kind identifies the expansion variant a character can manifest.
type Kind string

const (
	// KindIncomplete is the short variant capped at 2 rounds.
	KindIncomplete Kind = "incomplete"
	// KindComplete is the full variant capped at 5 rounds.
	KindComplete Kind = "complete"
)

// Maintenance schedule constants. Rounds 1-2 are free for both kinds;
// a complete expansion pays effort from round 3 on.
const (
	incompleteMaxRounds = 2
	completeMaxRounds   = 5

	freeRounds           = 2
	completeUpkeepCost   = 50
	completeFinalRound   = 5
	completeFinalCost    = 100
	incompleteExhaustion = 2
	completeExhaustion   = 4
)

var (
	// ErrAlreadyActive indicates an activation attempt while an expansion is running.
	ErrAlreadyActive = apperrors.New(apperrors.CodeDomainAlreadyActive, "domain expansion is already active")
	// ErrNotActive indicates a round advance or closure without an active expansion.
	ErrNotActive = apperrors.New(apperrors.CodeDomainNotActive, "no domain expansion is active")
	// ErrInvalidKind indicates a kind outside incomplete/complete.
	ErrInvalidKind = apperrors.New(apperrors.CodeDomainInvalidKind, "domain expansion kind must be incomplete or complete")
)

// Valid reports whether the kind is a known expansion variant.
func (k Kind) Valid() bool {
	return k == KindIncomplete || k == KindComplete
}

// MaxRounds returns the round cap for the kind.
func (k Kind) MaxRounds() int {
	if k == KindComplete {
		return completeMaxRounds
	}
	return incompleteMaxRounds
}

// ExhaustionRounds returns the duration of the post-closure exhaustion
// penalty for the kind.
func (k Kind) ExhaustionRounds() int {
	if k == KindComplete {
		return completeExhaustion
	}
	return incompleteExhaustion
}

// State captures the expansion state machine for one character.
// Inactive states carry a zero round and an empty kind.
type State struct {
	Active bool
	Kind   Kind
	Round  int
}

// Closed returns the inactive state.
func Closed() State {
	return State{}
}

// Exhaustion is the penalty marker appended to a character's condition
// record when an expansion closes. It is data only; enforcement of the
// penalty is a rules-layer concern.
type Exhaustion struct {
	Rounds int
}

// MaintenanceCost returns the effort cost to sustain the expansion into the
// given round. This is the single canonical schedule used by both the local
// forced-advance path and the GM batch processor.
func MaintenanceCost(kind Kind, round int) int {
	if kind != KindComplete {
		return 0
	}
	if round <= freeRounds {
		return 0
	}
	if round >= completeFinalRound {
		return completeFinalCost
	}
	return completeUpkeepCost
}

// ActivateOutcome captures a successful activation.
type ActivateOutcome struct {
	State State
	Pool  pool.Pool
}

// Activate starts an expansion of the given kind, charging cost from energy.
// The character must meet the required level and hold enough energy; failed
// gates reject with no state or pool change.
func Activate(state State, p pool.Pool, level int, kind Kind, cost, requiredLevel int) (ActivateOutcome, error) {
	if state.Active {
		return ActivateOutcome{}, ErrAlreadyActive
	}
	if !kind.Valid() {
		return ActivateOutcome{}, ErrInvalidKind
	}
	if level < requiredLevel {
		return ActivateOutcome{}, apperrors.WithMetadata(
			apperrors.CodeDomainLevelTooLow,
			"character level is below the expansion requirement",
			map[string]string{
				"level":    strconv.Itoa(level),
				"required": strconv.Itoa(requiredLevel),
			},
		)
	}
	if p.Energy < cost {
		return ActivateOutcome{}, apperrors.WithMetadata(
			apperrors.CodeDomainInsufficientEnergy,
			"energy is insufficient to activate the expansion",
			map[string]string{
				"energy": strconv.Itoa(p.Energy),
				"cost":   strconv.Itoa(cost),
			},
		)
	}

	charged, err := pool.Consume(p, pool.FieldEnergy, cost)
	if err != nil {
		return ActivateOutcome{}, err
	}
	return ActivateOutcome{
		State: State{Active: true, Kind: kind, Round: 1},
		Pool:  charged,
	}, nil
}

// AdvanceOutcome captures the result of a round advance attempt.
type AdvanceOutcome struct {
	State State
	Pool  pool.Pool
	// Advanced is true when the expansion moved to the next round.
	Advanced bool
	// MaintenanceDue is true when a non-forced advance stopped at a costed
	// round; the caller must confirm and re-invoke with force.
	MaintenanceDue bool
	// Cost is the effort charged (or due) for the advanced round.
	Cost int
	// Closed is true when the expansion ended, either past its cap or for
	// lack of effort.
	Closed bool
	// Exhaustion is set exactly when Closed is true.
	Exhaustion *Exhaustion
}

// AdvanceRound moves the expansion to the next round, applying the
// maintenance schedule. Exceeding the round cap forces closure regardless of
// force or cost. When maintenance applies and force is false the call is a
// no-op reporting MaintenanceDue; when forced with insufficient effort the
// expansion force-closes instead of advancing.
func AdvanceRound(state State, p pool.Pool, force bool) (AdvanceOutcome, error) {
	if !state.Active {
		return AdvanceOutcome{}, ErrNotActive
	}

	next := state.Round + 1
	if next > state.Kind.MaxRounds() {
		marker := Exhaustion{Rounds: state.Kind.ExhaustionRounds()}
		return AdvanceOutcome{
			State:      Closed(),
			Pool:       p,
			Closed:     true,
			Exhaustion: &marker,
		}, nil
	}

	cost := MaintenanceCost(state.Kind, next)
	if cost > 0 && !force {
		return AdvanceOutcome{
			State:          state,
			Pool:           p,
			MaintenanceDue: true,
			Cost:           cost,
		}, nil
	}
	if cost > 0 && p.Effort < cost {
		marker := Exhaustion{Rounds: state.Kind.ExhaustionRounds()}
		return AdvanceOutcome{
			State:      Closed(),
			Pool:       p,
			Cost:       cost,
			Closed:     true,
			Exhaustion: &marker,
		}, nil
	}

	charged, err := pool.Consume(p, pool.FieldEffort, cost)
	if err != nil {
		return AdvanceOutcome{}, err
	}
	updated := state
	updated.Round = next
	return AdvanceOutcome{
		State:    updated,
		Pool:     charged,
		Advanced: true,
		Cost:     cost,
	}, nil
}

// CloseOutcome captures a closure and its exhaustion marker.
type CloseOutcome struct {
	State      State
	Exhaustion Exhaustion
}

// Close ends the expansion voluntarily or by force. Every closure yields
// exactly one exhaustion marker sized by the kind.
func Close(state State) (CloseOutcome, error) {
	if !state.Active {
		return CloseOutcome{}, ErrNotActive
	}
	return CloseOutcome{
		State:      Closed(),
		Exhaustion: Exhaustion{Rounds: state.Kind.ExhaustionRounds()},
	}, nil
}
