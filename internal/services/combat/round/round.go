// Package round implements the GM round advancement batch: resource
// regeneration, domain maintenance, and action economy reset for every
// roster participant, committed as one transaction.
package round

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/expansion"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/domain/sheet"
	"github.com/veilbound/companion/internal/services/combat/domain/turn"
	"github.com/veilbound/companion/internal/services/combat/feed"
	"github.com/veilbound/companion/internal/services/combat/mirror"
	"github.com/veilbound/companion/internal/services/combat/storage"
)

// effortRegen is the flat per-round effort recovery for conscious combatants.
const effortRegen = 1

// Store is the storage surface the processor reads and commits through.
type Store interface {
	GetRoster(ctx context.Context, campaignID string) (roster.Roster, error)
	ListMirrors(ctx context.Context, campaignID string) ([]mirror.Document, error)
	ApplyRound(ctx context.Context, campaignID string, docs []mirror.Document, conditions []storage.ConditionRecord) ([]mirror.Document, error)
}

// Outcome reports a committed round advancement.
type Outcome struct {
	Documents  []mirror.Document
	Conditions []storage.ConditionRecord
}

// Processor advances combat rounds for whole campaigns.
type Processor struct {
	store  Store
	hub    *feed.Hub
	tracer trace.Tracer
}

// NewProcessor builds a round processor over the store and feed hub.
func NewProcessor(store Store, hub *feed.Hub) *Processor {
	return &Processor{
		store:  store,
		hub:    hub,
		tracer: otel.Tracer("combat/round"),
	}
}

// Advance applies one round to every combatant on the campaign roster and
// commits the batch atomically. Only the participant who started combat may
// advance; any storage failure rolls the whole batch back and surfaces one
// error.
func (p *Processor) Advance(ctx context.Context, campaignID, gmUserID string) (Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "round.advance",
		trace.WithAttributes(attribute.String("campaign.id", campaignID)))
	defer span.End()

	r, err := p.store.GetRoster(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, apperrors.New(apperrors.CodeRosterNotActive, "combat is not active for this campaign")
		}
		return Outcome{}, err
	}
	if !r.Active {
		return Outcome{}, apperrors.New(apperrors.CodeRosterNotActive, "combat is not active for this campaign")
	}
	if gmUserID == "" || gmUserID != r.StartedBy {
		return Outcome{}, apperrors.New(apperrors.CodeRoundNotGM, "only the participant who started combat can advance the round")
	}
	if len(r.Participants) == 0 {
		return Outcome{}, nil
	}

	mirrors, err := p.store.ListMirrors(ctx, campaignID)
	if err != nil {
		return Outcome{}, err
	}
	byKey := make(map[string]mirror.Document, len(mirrors))
	for _, doc := range mirrors {
		byKey[doc.Key()] = doc
	}

	docs := make([]mirror.Document, 0, len(r.Participants))
	var conditions []storage.ConditionRecord
	for _, participant := range r.Participants {
		doc, ok := byKey[participant.Key()]
		if !ok {
			doc = mirror.Document{
				UserID:        participant.UserID,
				CharacterID:   participant.CharacterID,
				CharacterName: participant.CharacterName,
			}
		}

		advanced, marker := advanceCombatant(doc)
		if marker != nil {
			conditions = append(conditions, storage.ConditionRecord{
				CampaignID:  campaignID,
				UserID:      doc.UserID,
				CharacterID: doc.CharacterID,
				Name:        "exhaustion",
				Rounds:      marker.Rounds,
			})
		}
		docs = append(docs, advanced)
	}

	stored, err := p.store.ApplyRound(ctx, campaignID, docs, conditions)
	if err != nil {
		return Outcome{}, apperrors.Wrap(apperrors.CodeRoundCommitFailed, "round advancement could not be committed", err)
	}

	span.SetAttributes(
		attribute.Int("round.combatants", len(stored)),
		attribute.Int("round.conditions", len(conditions)),
	)
	p.announce(ctx, campaignID, stored)
	return Outcome{Documents: stored, Conditions: conditions}, nil
}

// advanceCombatant applies regeneration, domain maintenance, and the fresh
// turn record to one combatant. Unconscious combatants keep their pools and
// domain untouched.
func advanceCombatant(doc mirror.Document) (mirror.Document, *expansion.Exhaustion) {
	pl, domain := doc.Hydrate()
	maxima := doc.Maxima()

	var marker *expansion.Exhaustion
	if pl.Health > 0 {
		if sheet.Restricted(doc.CharacterClass, doc.Origin) {
			pl.Energy = 0
		} else {
			regen := sheet.EnergyRegen(doc.Level, doc.PresenceAttribute)
			pl.Energy = clampGain(pl.Energy, regen, maxima.Energy)
		}
		pl.Effort = clampGain(pl.Effort, effortRegen, maxima.Effort)

		if domain.Active {
			outcome, err := expansion.AdvanceRound(domain, pl, true)
			if err == nil {
				domain = outcome.State
				pl = outcome.Pool
				marker = outcome.Exhaustion
			}
		}
	}

	doc.CurrentStats = mirror.Stats{Health: pl.Health, Energy: pl.Energy, Effort: pl.Effort}
	doc.DomainActive = domain.Active
	doc.DomainRound = domain.Round
	doc.DomainKind = string(domain.Kind)
	if !domain.Active {
		doc.DomainKind = ""
	}
	doc.ActionState = mirror.FromTurnState(turn.FreshTurn())
	return doc, marker
}

// clampGain adds a gain capped at the ceiling without ever lowering a value
// already above it, so regeneration cannot destroy an overcharge.
func clampGain(current, gain, ceiling int) int {
	next := current + gain
	if next > ceiling {
		if current > ceiling {
			return current
		}
		return ceiling
	}
	return next
}

func (p *Processor) announce(ctx context.Context, campaignID string, docs []mirror.Document) {
	for _, doc := range docs {
		event, err := feed.NewEvent(feed.EventRoundAdvanced, campaignID, doc)
		if err != nil {
			continue
		}
		_ = p.hub.Publish(ctx, event)
	}
}
