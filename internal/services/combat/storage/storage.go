// Package storage defines the persistence interfaces for the shared combat
// store: mirror documents, campaign rosters, and character condition
// records.
package storage

import (
	"context"
	"time"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/mirror"
)

// ErrNotFound indicates a requested persistence record is missing. Callers
// use this to differentiate between legitimate "no such entity" states and
// transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ConditionRecord captures a buff/debuff marker appended to a character's
// campaign record, such as the exhaustion penalty after a domain closure.
type ConditionRecord struct {
	CampaignID  string
	UserID      string
	CharacterID string
	Name        string
	Rounds      int
	AppliedAt   time.Time
}

// MirrorStore owns the per-campaign combat mirror documents. The store
// provides field-level merge writes with monotonic revision stamping on top
// of its last-write-wins document model.
type MirrorStore interface {
	GetMirror(ctx context.Context, campaignID, key string) (mirror.Document, error)
	// ListMirrors returns all mirror documents for a campaign in key order.
	ListMirrors(ctx context.Context, campaignID string) ([]mirror.Document, error)
	// MergeMirror overlays the document onto any existing revision per the
	// ownership policy, bumps the revision, and returns the stored result.
	MergeMirror(ctx context.Context, campaignID string, doc mirror.Document, writer mirror.Writer) (mirror.Document, error)
	// ApplyRound commits a round advancement batch and its condition
	// markers in one transaction; readers never observe a partial round.
	ApplyRound(ctx context.Context, campaignID string, docs []mirror.Document, conditions []ConditionRecord) ([]mirror.Document, error)
}

// RosterStore owns the campaign combat roster records.
type RosterStore interface {
	PutRoster(ctx context.Context, r roster.Roster) error
	GetRoster(ctx context.Context, campaignID string) (roster.Roster, error)
	// ListActiveCampaignsForCharacter returns campaign ids whose active
	// roster lists the character, used to decide mirroring targets.
	ListActiveCampaignsForCharacter(ctx context.Context, userID, characterID string) ([]string, error)
}

// ConditionStore owns character condition markers.
type ConditionStore interface {
	AppendCondition(ctx context.Context, record ConditionRecord) error
	ListConditions(ctx context.Context, campaignID, characterID string) ([]ConditionRecord, error)
}

// Store aggregates all combat persistence interfaces.
type Store interface {
	MirrorStore
	RosterStore
	ConditionStore
	Close() error
}
