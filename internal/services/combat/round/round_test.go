package round

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/feed"
	"github.com/veilbound/companion/internal/services/combat/mirror"
	"github.com/veilbound/companion/internal/services/combat/storage"
)

type fakeStore struct {
	roster   roster.Roster
	noRoster bool
	mirrors  []mirror.Document
	applyErr error

	appliedDocs       []mirror.Document
	appliedConditions []storage.ConditionRecord
}

func (f *fakeStore) GetRoster(_ context.Context, _ string) (roster.Roster, error) {
	if f.noRoster {
		return roster.Roster{}, storage.ErrNotFound
	}
	return f.roster, nil
}

func (f *fakeStore) ListMirrors(_ context.Context, _ string) ([]mirror.Document, error) {
	return f.mirrors, nil
}

func (f *fakeStore) ApplyRound(_ context.Context, _ string, docs []mirror.Document, conditions []storage.ConditionRecord) ([]mirror.Document, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.appliedDocs = docs
	f.appliedConditions = conditions
	stored := make([]mirror.Document, len(docs))
	for i, doc := range docs {
		doc.LastWriter = mirror.WriterGM
		doc.Revision = 2
		stored[i] = doc
	}
	return stored, nil
}

func runTestHub(t *testing.T) *feed.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := feed.NewHub()
	go hub.Run(ctx)
	return hub
}

func activeRoster(participants ...roster.Participant) roster.Roster {
	r, err := roster.Start("camp-1", "gm-1", participants, time.Now())
	if err != nil {
		panic(err)
	}
	return r
}

func combatantDoc(health, energy, effort int) mirror.Document {
	return mirror.Document{
		UserID:            "user-1",
		CharacterID:       "char-1",
		CharacterName:     "Aiko",
		Level:             10,
		PresenceAttribute: 2,
		CurrentStats:      mirror.Stats{Health: health, Energy: energy, Effort: effort},
		MaxStats:          mirror.Stats{Health: 40, Energy: 150, Effort: 8},
	}
}

func TestAdvanceRequiresActiveRoster(t *testing.T) {
	store := &fakeStore{noRoster: true}
	processor := NewProcessor(store, runTestHub(t))

	_, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if !apperrors.IsCode(err, apperrors.CodeRosterNotActive) {
		t.Fatalf("expected roster-not-active, got %v", err)
	}

	store = &fakeStore{roster: activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}).Stop()}
	processor = NewProcessor(store, runTestHub(t))
	_, err = processor.Advance(context.Background(), "camp-1", "gm-1")
	if !apperrors.IsCode(err, apperrors.CodeRosterNotActive) {
		t.Fatalf("expected roster-not-active for stopped combat, got %v", err)
	}
}

func TestAdvanceRejectsNonStarter(t *testing.T) {
	store := &fakeStore{roster: activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"})}
	processor := NewProcessor(store, runTestHub(t))

	_, err := processor.Advance(context.Background(), "camp-1", "user-1")
	if !apperrors.IsCode(err, apperrors.CodeRoundNotGM) {
		t.Fatalf("expected not-gm error, got %v", err)
	}
}

func TestAdvanceEmptyRosterIsNoOp(t *testing.T) {
	r := activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"})
	r.Participants = nil
	store := &fakeStore{roster: r}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(outcome.Documents) != 0 {
		t.Fatalf("expected empty outcome, got %d docs", len(outcome.Documents))
	}
	if store.appliedDocs != nil {
		t.Fatal("expected no store write for empty roster")
	}
}

func TestAdvanceRegeneratesConsciousCombatant(t *testing.T) {
	store := &fakeStore{
		roster:  activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors: []mirror.Document{combatantDoc(30, 100, 5)},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	doc := outcome.Documents[0]
	// Energy regen is level + presence.
	if doc.CurrentStats.Energy != 112 {
		t.Fatalf("expected energy 112, got %d", doc.CurrentStats.Energy)
	}
	if doc.CurrentStats.Effort != 6 {
		t.Fatalf("expected effort 6, got %d", doc.CurrentStats.Effort)
	}
	if doc.ActionState == nil || !doc.ActionState.Standard || doc.ActionState.Movement != 9 {
		t.Fatalf("expected fresh turn, got %+v", doc.ActionState)
	}
	if doc.LastWriter != mirror.WriterGM {
		t.Fatalf("expected gm writer, got %q", doc.LastWriter)
	}
}

func TestAdvanceClampsRegenToMaxima(t *testing.T) {
	store := &fakeStore{
		roster:  activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors: []mirror.Document{combatantDoc(30, 145, 8)},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	doc := outcome.Documents[0]
	if doc.CurrentStats.Energy != 150 {
		t.Fatalf("expected energy clamped to 150, got %d", doc.CurrentStats.Energy)
	}
	if doc.CurrentStats.Effort != 8 {
		t.Fatalf("expected effort clamped to 8, got %d", doc.CurrentStats.Effort)
	}
}

func TestAdvanceSkipsUnconsciousCombatant(t *testing.T) {
	store := &fakeStore{
		roster:  activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors: []mirror.Document{combatantDoc(0, 40, 2)},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	doc := outcome.Documents[0]
	if doc.CurrentStats.Energy != 40 || doc.CurrentStats.Effort != 2 {
		t.Fatalf("expected pools untouched, got %+v", doc.CurrentStats)
	}
	if doc.ActionState == nil {
		t.Fatal("expected fresh turn even while unconscious")
	}
}

func TestAdvanceZeroesEnergyForRestrictedArchetype(t *testing.T) {
	doc := combatantDoc(30, 100, 5)
	doc.Origin = "Restrição Celestial"
	store := &fakeStore{
		roster:  activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors: []mirror.Document{doc},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if outcome.Documents[0].CurrentStats.Energy != 0 {
		t.Fatalf("expected zeroed energy, got %d", outcome.Documents[0].CurrentStats.Energy)
	}
}

func TestAdvancePaysDomainMaintenanceFromPostRegenEffort(t *testing.T) {
	doc := combatantDoc(30, 100, 49)
	doc.MaxStats.Effort = 60
	doc.DomainActive = true
	doc.DomainRound = 2
	doc.DomainKind = "complete"
	store := &fakeStore{
		roster:  activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors: []mirror.Document{doc},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	advanced := outcome.Documents[0]
	// Effort regenerates to 50, then round 3 maintenance costs 50.
	if !advanced.DomainActive || advanced.DomainRound != 3 {
		t.Fatalf("expected domain at round 3, got %+v", advanced)
	}
	if advanced.CurrentStats.Effort != 0 {
		t.Fatalf("expected effort spent to 0, got %d", advanced.CurrentStats.Effort)
	}
	if len(outcome.Conditions) != 0 {
		t.Fatalf("expected no conditions, got %+v", outcome.Conditions)
	}
}

func TestAdvanceForceClosesDomainOnShortfall(t *testing.T) {
	doc := combatantDoc(30, 100, 3)
	doc.DomainActive = true
	doc.DomainRound = 2
	doc.DomainKind = "complete"
	store := &fakeStore{
		roster:  activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors: []mirror.Document{doc},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	advanced := outcome.Documents[0]
	if advanced.DomainActive {
		t.Fatal("expected force-closed domain")
	}
	if advanced.DomainKind != "" || advanced.DomainRound != 0 {
		t.Fatalf("expected cleared domain fields, got %+v", advanced)
	}
	if len(outcome.Conditions) != 1 {
		t.Fatalf("expected 1 exhaustion condition, got %d", len(outcome.Conditions))
	}
	if outcome.Conditions[0].Name != "exhaustion" || outcome.Conditions[0].Rounds != 4 {
		t.Fatalf("expected complete-kind exhaustion of 4 rounds, got %+v", outcome.Conditions[0])
	}
}

func TestAdvanceFillsMissingMirrorAsZeroValued(t *testing.T) {
	store := &fakeStore{
		roster: activeRoster(
			roster.Participant{UserID: "user-1", CharacterID: "char-1", CharacterName: "Aiko"},
			roster.Participant{UserID: "user-2", CharacterID: "char-2", CharacterName: "Bren"},
		),
		mirrors: []mirror.Document{combatantDoc(30, 100, 5)},
	}
	processor := NewProcessor(store, runTestHub(t))

	outcome, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(outcome.Documents) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(outcome.Documents))
	}
	missing := outcome.Documents[1]
	if missing.UserID != "user-2" || missing.CharacterName != "Bren" {
		t.Fatalf("expected zero-valued doc for user-2, got %+v", missing)
	}
	// Zero health reads as unconscious; pools stay zero.
	if missing.CurrentStats != (mirror.Stats{}) {
		t.Fatalf("expected zero stats, got %+v", missing.CurrentStats)
	}
}

func TestAdvanceSurfacesCommitFailure(t *testing.T) {
	store := &fakeStore{
		roster:   activeRoster(roster.Participant{UserID: "user-1", CharacterID: "char-1"}),
		mirrors:  []mirror.Document{combatantDoc(30, 100, 5)},
		applyErr: errors.New("disk full"),
	}
	processor := NewProcessor(store, runTestHub(t))

	_, err := processor.Advance(context.Background(), "camp-1", "gm-1")
	if !apperrors.IsCode(err, apperrors.CodeRoundCommitFailed) {
		t.Fatalf("expected commit-failed error, got %v", err)
	}
}
