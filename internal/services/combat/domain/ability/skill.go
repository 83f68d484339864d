package ability

import "github.com/veilbound/companion/internal/services/combat/core/textfold"

// SkillKey folds a skill name for trigger matching: trimmed, lowercased,
// diacritics removed.
func SkillKey(name string) string {
	return textfold.Key(name)
}

// SkillEqual reports whether two skill names match after folding.
func SkillEqual(a, b string) bool {
	return textfold.Equal(a, b)
}
