// Package roster models the per-campaign set of combatants marked active in
// combat. The roster is owned by the GM; players read it to decide whether
// their local state must be mirrored.
package roster

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
)

var (
	// ErrEmptyCampaignID indicates a roster operation without a campaign.
	ErrEmptyCampaignID = apperrors.New(apperrors.CodeRosterEmptyCampaignID, "campaign id is required")
	// ErrEmptyStartedBy indicates a combat start without the GM's user id.
	ErrEmptyStartedBy = apperrors.New(apperrors.CodeRosterEmptyStartedBy, "started-by user id is required")
	// ErrInvalidParticipant indicates a participant missing user or character id.
	ErrInvalidParticipant = apperrors.New(apperrors.CodeRosterInvalidParticipant, "participant requires user id and character id")
	// ErrNotActive indicates a participant update while combat is inactive.
	ErrNotActive = apperrors.New(apperrors.CodeRosterNotActive, "combat is not active for campaign")
	// ErrAlreadyActive indicates a combat start while combat is already running.
	ErrAlreadyActive = apperrors.New(apperrors.CodeRosterAlreadyActive, "combat is already active for campaign")
)

// Participant identifies one combatant on the roster.
type Participant struct {
	UserID        string `json:"userId"`
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName,omitempty"`
}

// Key returns the mirror document key for the participant.
func (p Participant) Key() string {
	return ParticipantKey(p.UserID, p.CharacterID)
}

// ParticipantKey derives the "{userID}_{characterID}" key shared by rosters
// and mirror documents.
func ParticipantKey(userID, characterID string) string {
	return fmt.Sprintf("%s_%s", userID, characterID)
}

// Roster captures the active-combat state of a campaign.
type Roster struct {
	CampaignID   string
	Active       bool
	Participants []Participant
	StartedAt    time.Time
	StartedBy    string
}

// Start opens combat for a campaign with the given participants.
func Start(campaignID, startedBy string, participants []Participant, now time.Time) (Roster, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return Roster{}, ErrEmptyCampaignID
	}
	startedBy = strings.TrimSpace(startedBy)
	if startedBy == "" {
		return Roster{}, ErrEmptyStartedBy
	}
	deduped, err := dedupe(participants)
	if err != nil {
		return Roster{}, err
	}
	return Roster{
		CampaignID:   campaignID,
		Active:       true,
		Participants: deduped,
		StartedAt:    now.UTC(),
		StartedBy:    startedBy,
	}, nil
}

// Stop closes combat, clearing the participant set.
func (r Roster) Stop() Roster {
	out := r
	out.Active = false
	out.Participants = nil
	return out
}

// WithParticipants replaces the roster membership while combat runs.
func (r Roster) WithParticipants(participants []Participant) (Roster, error) {
	if !r.Active {
		return Roster{}, ErrNotActive
	}
	deduped, err := dedupe(participants)
	if err != nil {
		return Roster{}, err
	}
	out := r
	out.Participants = deduped
	return out, nil
}

// Keys returns the participant keys in roster order.
func (r Roster) Keys() []string {
	keys := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		keys = append(keys, p.Key())
	}
	return keys
}

// HasCharacter reports whether the user's character is on the active roster.
func (r Roster) HasCharacter(userID, characterID string) bool {
	if !r.Active {
		return false
	}
	key := ParticipantKey(userID, characterID)
	for _, p := range r.Participants {
		if p.Key() == key {
			return true
		}
	}
	return false
}

func dedupe(participants []Participant) ([]Participant, error) {
	seen := map[string]bool{}
	out := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.CharacterID) == "" {
			return nil, ErrInvalidParticipant
		}
		key := p.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out, nil
}
