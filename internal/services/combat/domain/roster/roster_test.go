package roster

import (
	"errors"
	"testing"
	"time"
)

func TestStart(t *testing.T) {
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	participants := []Participant{
		{UserID: "user-1", CharacterID: "char-1", CharacterName: "Aiko"},
		{UserID: "user-2", CharacterID: "char-2", CharacterName: "Bren"},
	}

	r, err := Start("camp-1", "gm-1", participants, now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.Active {
		t.Fatal("expected active roster")
	}
	if r.StartedBy != "gm-1" {
		t.Fatalf("expected started by gm-1, got %q", r.StartedBy)
	}
	wantKeys := []string{"user-1_char-1", "user-2_char-2"}
	keys := r.Keys()
	if len(keys) != len(wantKeys) {
		t.Fatalf("expected %d keys, got %d", len(wantKeys), len(keys))
	}
	for i, key := range wantKeys {
		if keys[i] != key {
			t.Fatalf("expected key %q at %d, got %q", key, i, keys[i])
		}
	}
}

func TestStartDeduplicatesParticipants(t *testing.T) {
	participants := []Participant{
		{UserID: "user-1", CharacterID: "char-1"},
		{UserID: "user-1", CharacterID: "char-1"},
	}

	r, err := Start("camp-1", "gm-1", participants, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(r.Participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(r.Participants))
	}
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name         string
		campaignID   string
		startedBy    string
		participants []Participant
		wantErr      error
	}{
		{name: "empty campaign", startedBy: "gm-1", wantErr: ErrEmptyCampaignID},
		{name: "empty started by", campaignID: "camp-1", wantErr: ErrEmptyStartedBy},
		{
			name:         "invalid participant",
			campaignID:   "camp-1",
			startedBy:    "gm-1",
			participants: []Participant{{UserID: "user-1"}},
			wantErr:      ErrInvalidParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start(tt.campaignID, tt.startedBy, tt.participants, time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStopClearsParticipants(t *testing.T) {
	r, err := Start("camp-1", "gm-1", []Participant{{UserID: "u", CharacterID: "c"}}, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	stopped := r.Stop()
	if stopped.Active {
		t.Fatal("expected inactive roster")
	}
	if len(stopped.Participants) != 0 {
		t.Fatalf("expected cleared participants, got %d", len(stopped.Participants))
	}
}

func TestWithParticipantsRequiresActive(t *testing.T) {
	r := Roster{CampaignID: "camp-1"}
	_, err := r.WithParticipants([]Participant{{UserID: "u", CharacterID: "c"}})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestHasCharacter(t *testing.T) {
	r, err := Start("camp-1", "gm-1", []Participant{{UserID: "user-1", CharacterID: "char-1"}}, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if !r.HasCharacter("user-1", "char-1") {
		t.Fatal("expected character on roster")
	}
	if r.HasCharacter("user-1", "char-2") {
		t.Fatal("expected character off roster")
	}
	if r.Stop().HasCharacter("user-1", "char-1") {
		t.Fatal("expected inactive roster to report no characters")
	}
}
