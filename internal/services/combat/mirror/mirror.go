// Package mirror defines the shared per-campaign combat snapshot exchanged
// between a player's live session and the GM dashboard, and the merge policy
// that keeps concurrent writers from clobbering fields they do not own.
package mirror

import (
	"encoding/json"
	"time"

	"github.com/veilbound/companion/internal/services/combat/domain/expansion"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/domain/turn"
)

// Writer identifies which side produced a document revision.
type Writer string

const (
	// WriterPlayer marks revisions pushed by the owning player's session.
	WriterPlayer Writer = "player"
	// WriterGM marks revisions committed by the GM's round advancement.
	WriterGM Writer = "gm"
)

// Stats carries one pool snapshot on the wire (pv/ce/pe).
type Stats struct {
	Health int `json:"pv"`
	Energy int `json:"ce"`
	Effort int `json:"pe"`
}

// ActionState is the wire form of the per-round action economy record.
type ActionState struct {
	Standard        bool `json:"standard"`
	Movement        int  `json:"movement"`
	ReactionPenalty int  `json:"reactionPenalty"`
}

// Document is the shared snapshot of a character's live combat state,
// persisted per campaign under the "{userId}_{characterId}" key.
type Document struct {
	UserID            string       `json:"userId"`
	CharacterID       string       `json:"characterId"`
	CharacterName     string       `json:"characterName"`
	Level             int          `json:"level"`
	ImageURL          string       `json:"imageUrl,omitempty"`
	CharacterClass    string       `json:"characterClass,omitempty"`
	Origin            string       `json:"origin,omitempty"`
	PresenceAttribute int          `json:"presenceAttribute,omitempty"`
	CurrentStats      Stats        `json:"currentStats"`
	MaxStats          Stats        `json:"maxStats"`
	DomainActive      bool         `json:"domainActive,omitempty"`
	DomainRound       int          `json:"domainRound,omitempty"`
	DomainKind        string       `json:"domainType,omitempty"`
	ActionState       *ActionState `json:"actionState,omitempty"`
	UpdatedAt         int64        `json:"updatedAt"`

	// Revision and LastWriter are write provenance added on top of the
	// last-write-wins store so the push/batch race resolves
	// deterministically instead of by accident.
	Revision   int64  `json:"revision"`
	LastWriter Writer `json:"lastWriter,omitempty"`
}

// Key returns the document key within its campaign.
func (d Document) Key() string {
	return roster.ParticipantKey(d.UserID, d.CharacterID)
}

// SnapshotInput carries the session fields serialized into a document.
type SnapshotInput struct {
	UserID            string
	CharacterID       string
	CharacterName     string
	Level             int
	ImageURL          string
	CharacterClass    string
	Origin            string
	PresenceAttribute int
	Pool              pool.Pool
	Maxima            pool.Maxima
	Domain            expansion.State
	UpdatedAt         time.Time
}

// Snapshot serializes a session's live state into a mirror document.
func Snapshot(in SnapshotInput) Document {
	return Document{
		UserID:            in.UserID,
		CharacterID:       in.CharacterID,
		CharacterName:     in.CharacterName,
		Level:             in.Level,
		ImageURL:          in.ImageURL,
		CharacterClass:    in.CharacterClass,
		Origin:            in.Origin,
		PresenceAttribute: in.PresenceAttribute,
		CurrentStats:      Stats{Health: in.Pool.Health, Energy: in.Pool.Energy, Effort: in.Pool.Effort},
		MaxStats:          Stats{Health: in.Maxima.Health, Energy: in.Maxima.Energy, Effort: in.Maxima.Effort},
		DomainActive:      in.Domain.Active,
		DomainRound:       in.Domain.Round,
		DomainKind:        string(in.Domain.Kind),
		UpdatedAt:         in.UpdatedAt.UTC().UnixMilli(),
	}
}

// Hydrate rebuilds the local pool and domain state from a document.
func (d Document) Hydrate() (pool.Pool, expansion.State) {
	p := pool.Pool{
		Health: d.CurrentStats.Health,
		Energy: d.CurrentStats.Energy,
		Effort: d.CurrentStats.Effort,
	}
	state := expansion.State{}
	if d.DomainActive {
		state = expansion.State{
			Active: true,
			Kind:   expansion.Kind(d.DomainKind),
			Round:  d.DomainRound,
		}
	}
	return p, state
}

// Maxima rebuilds the derived maxima reference from a document.
func (d Document) Maxima() pool.Maxima {
	return pool.Maxima{
		Health: d.MaxStats.Health,
		Energy: d.MaxStats.Energy,
		Effort: d.MaxStats.Effort,
	}
}

// Encode returns the canonical serialization used to detect unchanged
// pushes. Provenance fields are cleared so a store-side revision bump never
// forces a spurious push.
func (d Document) Encode() ([]byte, error) {
	d.Revision = 0
	d.LastWriter = ""
	d.UpdatedAt = 0
	return json.Marshal(d)
}

// Merge overlays an incoming write onto the existing document, respecting
// field ownership: player writes keep the GM-owned action state; GM writes
// keep the player-owned identity fields. Revision stamping is left to the
// store.
func Merge(existing, incoming Document, writer Writer) Document {
	out := incoming
	switch writer {
	case WriterPlayer:
		out.ActionState = existing.ActionState
	case WriterGM:
		out.CharacterName = existing.CharacterName
		out.ImageURL = existing.ImageURL
		out.CharacterClass = existing.CharacterClass
		out.Origin = existing.Origin
	}
	out.Revision = existing.Revision
	out.LastWriter = writer
	return out
}

// TurnState converts a wire action state to the domain record.
func (a ActionState) TurnState() turn.ActionState {
	return turn.ActionState{
		Standard:        a.Standard,
		Movement:        a.Movement,
		ReactionPenalty: a.ReactionPenalty,
	}
}

// FromTurnState converts a domain action state to the wire record.
func FromTurnState(state turn.ActionState) *ActionState {
	return &ActionState{
		Standard:        state.Standard,
		Movement:        state.Movement,
		ReactionPenalty: state.ReactionPenalty,
	}
}
