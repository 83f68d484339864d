// Package turn models the per-round action economy record attached to every
// combatant when a round advances.
package turn

// Default movement allowance in meters for a fresh turn.
const defaultMovement = 9

// ActionState tracks what a combatant can still do this round.
type ActionState struct {
	Standard        bool
	Movement        int
	ReactionPenalty int
}

// FreshTurn returns the fixed action economy granted at the start of a
// round: one standard action, full movement, no reaction penalty.
func FreshTurn() ActionState {
	return ActionState{
		Standard: true,
		Movement: defaultMovement,
	}
}
