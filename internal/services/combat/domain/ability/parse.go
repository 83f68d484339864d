package ability

import (
	"regexp"
	"strconv"
)

// Compatibility parser for legacy free-text ability descriptions. Structured
// Ref fields are the authoritative schema; this adapter only backfills refs
// authored before costs and triggers were structured, and it stays at the
// system boundary so parsing never drives the queue state machine directly.

var (
	effortCostPattern = regexp.MustCompile(`(?i)(\d+)\s*PE\b`)
	energyCostPattern = regexp.MustCompile(`(?i)(\d+)\s*CE\b`)
	triggerPattern    = regexp.MustCompile(`(?i)em\s+testes?\s+de\s+([^.,;:()]+)`)
	modifierPattern   = regexp.MustCompile(`(?i)\b(dano|ataque|defesa|acerto)\b`)
)

// ParseDescription extracts cost, skill trigger, and combat-modifier
// classification from an authored description. Unrecognized text yields a
// zero cost, no trigger, and no modifier flag.
func ParseDescription(text string) (Cost, string, bool) {
	var cost Cost
	if m := effortCostPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			cost.Effort = v
		}
	}
	if m := energyCostPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			cost.Energy = v
		}
	}

	trigger := ""
	if m := triggerPattern.FindStringSubmatch(text); m != nil {
		trigger = SkillKey(m[1])
	}

	return cost, trigger, modifierPattern.MatchString(text)
}

// RefFromDescription builds a Ref for a legacy ability, filling cost,
// trigger, and modifier from the description text.
func RefFromDescription(id, name, description string) Ref {
	cost, trigger, modifier := ParseDescription(description)
	return Ref{
		ID:             id,
		Name:           name,
		Cost:           cost,
		TriggerSkill:   trigger,
		CombatModifier: modifier,
	}
}
