// Package ability models queued ability buffs: abilities whose effect is
// deferred until a future matching skill roll rather than applied at the
// moment of use.
package ability

import (
	"strconv"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
)

var (
	// ErrEmptyID indicates an ability reference without an identifier.
	ErrEmptyID = apperrors.New(apperrors.CodeAbilityEmptyID, "ability id is required")
	// ErrNotQueueable indicates a toggle on an ability with neither a combat
	// modifier nor a skill trigger.
	ErrNotQueueable = apperrors.New(apperrors.CodeAbilityNotQueueable, "ability has no combat modifier or skill trigger")
)

// Cost is the resource price of using an ability.
type Cost struct {
	Effort int
	Energy int
}

// IsZero reports whether the ability is free to use.
func (c Cost) IsZero() bool {
	return c.Effort == 0 && c.Energy == 0
}

// Ref is an immutable snapshot of an ability definition consumed from the
// character sheet. TriggerSkill and CombatModifier are derived from the
// authored description by the boundary parser; the queue only consumes the
// parsed result.
type Ref struct {
	ID             string
	Name           string
	Cost           Cost
	TriggerSkill   string
	CombatModifier bool
}

// Queueable reports whether the ability can be queued as a buff.
func (r Ref) Queueable() bool {
	return r.CombatModifier || r.TriggerSkill != ""
}

// BuffSet is the set of abilities currently queued, keyed by ability id and
// preserving toggle order. The zero value is an empty set.
type BuffSet struct {
	queued []Ref
}

// Contains reports whether the ability id is queued.
func (s BuffSet) Contains(id string) bool {
	for _, ref := range s.queued {
		if ref.ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of queued abilities.
func (s BuffSet) Len() int {
	return len(s.queued)
}

// Queued returns the queued abilities in toggle order.
func (s BuffSet) Queued() []Ref {
	return append([]Ref(nil), s.queued...)
}

func (s BuffSet) withAdded(ref Ref) BuffSet {
	out := append(append([]Ref(nil), s.queued...), ref)
	return BuffSet{queued: out}
}

func (s BuffSet) withRemoved(ids map[string]bool) BuffSet {
	out := make([]Ref, 0, len(s.queued))
	for _, ref := range s.queued {
		if !ids[ref.ID] {
			out = append(out, ref)
		}
	}
	return BuffSet{queued: out}
}

// ToggleOutcome captures a toggle result.
type ToggleOutcome struct {
	Set BuffSet
	// Queued is the membership state after the toggle.
	Queued bool
	// Charged is true when the on-toggle cost was paid.
	Charged bool
	Pool    pool.Pool
}

// Toggle flips the queued state of an ability. Toggling on an ability that
// carries a cost charges it immediately; toggling back off is a cancel and
// does not refund. Pure combat-modifier abilities without a cost queue for
// free.
func Toggle(set BuffSet, ref Ref, p pool.Pool) (ToggleOutcome, error) {
	if ref.ID == "" {
		return ToggleOutcome{}, ErrEmptyID
	}
	if !ref.Queueable() {
		return ToggleOutcome{}, ErrNotQueueable
	}

	if set.Contains(ref.ID) {
		return ToggleOutcome{
			Set:  set.withRemoved(map[string]bool{ref.ID: true}),
			Pool: p,
		}, nil
	}

	charged := false
	next := p
	if !ref.Cost.IsZero() {
		paid, err := Charge(p, ref.Cost)
		if err != nil {
			return ToggleOutcome{}, err
		}
		next = paid
		charged = true
	}
	return ToggleOutcome{
		Set:     set.withAdded(ref),
		Queued:  true,
		Charged: charged,
		Pool:    next,
	}, nil
}

// ResolveOutcome captures the buffs fired by a skill roll.
type ResolveOutcome struct {
	Set BuffSet
	// Fired lists abilities whose cumulative cost could be paid, in queue order.
	Fired []Ref
	// Skipped lists matching abilities that would have overdrawn a pool.
	Skipped []Ref
	Pool    pool.Pool
}

// ResolveOnSkillRoll fires every queued ability whose trigger matches the
// rolled skill (case and diacritic insensitive). Matching abilities are
// charged cumulatively in queue order; an ability that cannot be fully paid
// from the remaining pool is skipped, never partially applied. Fired
// abilities leave the set as a single batch.
func ResolveOnSkillRoll(set BuffSet, skillName string, p pool.Pool) ResolveOutcome {
	outcome := ResolveOutcome{Set: set, Pool: p}
	if skillName == "" {
		return outcome
	}

	fired := map[string]bool{}
	remaining := p
	for _, ref := range set.queued {
		if ref.TriggerSkill == "" || !SkillEqual(ref.TriggerSkill, skillName) {
			continue
		}
		paid, err := Charge(remaining, ref.Cost)
		if err != nil {
			outcome.Skipped = append(outcome.Skipped, ref)
			continue
		}
		remaining = paid
		fired[ref.ID] = true
		outcome.Fired = append(outcome.Fired, ref)
	}

	outcome.Set = set.withRemoved(fired)
	outcome.Pool = remaining
	return outcome
}

// Invoke charges an ability cost for immediate use with no queue
// interaction. Used for abilities with neither a combat modifier nor a
// skill trigger.
func Invoke(ref Ref, p pool.Pool) (pool.Pool, error) {
	if ref.ID == "" {
		return pool.Pool{}, ErrEmptyID
	}
	return Charge(p, ref.Cost)
}

// Charge deducts a cost from the pool, rejecting with the deficient gauge
// and amounts when either price cannot be met. No partial charge occurs.
func Charge(p pool.Pool, c Cost) (pool.Pool, error) {
	if p.Effort < c.Effort {
		return pool.Pool{}, insufficient(pool.FieldEffort, p.Effort, c.Effort)
	}
	if p.Energy < c.Energy {
		return pool.Pool{}, insufficient(pool.FieldEnergy, p.Energy, c.Energy)
	}

	charged, err := pool.Consume(p, pool.FieldEffort, c.Effort)
	if err != nil {
		return pool.Pool{}, err
	}
	charged, err = pool.Consume(charged, pool.FieldEnergy, c.Energy)
	if err != nil {
		return pool.Pool{}, err
	}
	return charged, nil
}

func insufficient(field pool.Field, have, want int) error {
	return apperrors.WithMetadata(
		apperrors.CodeAbilityInsufficientResource,
		"resource is insufficient for ability cost",
		map[string]string{
			"field": string(field),
			"have":  strconv.Itoa(have),
			"want":  strconv.Itoa(want),
		},
	)
}
