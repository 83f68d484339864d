package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/storage"
)

// Roster methods.

// PutRoster persists a campaign combat roster, replacing its participants.
func (s *Store) PutRoster(ctx context.Context, r roster.Roster) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(r.CampaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put roster: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaign_rosters (campaign_id, active, started_at, started_by)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(campaign_id) DO UPDATE SET
		   active = excluded.active,
		   started_at = excluded.started_at,
		   started_by = excluded.started_by`,
		r.CampaignID, boolToInt(r.Active), toNullMillis(r.StartedAt), r.StartedBy,
	); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM roster_participants WHERE campaign_id = ?`, r.CampaignID,
	); err != nil {
		return fmt.Errorf("clear roster participants: %w", err)
	}
	for i, p := range r.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roster_participants (campaign_id, user_id, character_id, character_name, position)
			 VALUES (?, ?, ?, ?, ?)`,
			r.CampaignID, p.UserID, p.CharacterID, p.CharacterName, i,
		); err != nil {
			return fmt.Errorf("write roster participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put roster: %w", err)
	}
	return nil
}

// GetRoster fetches a campaign combat roster with its participants.
func (s *Store) GetRoster(ctx context.Context, campaignID string) (roster.Roster, error) {
	if err := ctx.Err(); err != nil {
		return roster.Roster{}, err
	}
	if s == nil || s.sqlDB == nil {
		return roster.Roster{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaignID) == "" {
		return roster.Roster{}, fmt.Errorf("campaign id is required")
	}

	var (
		active    int
		startedAt sql.NullInt64
		startedBy string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT active, started_at, started_by FROM campaign_rosters WHERE campaign_id = ?`,
		campaignID,
	).Scan(&active, &startedAt, &startedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Roster{}, storage.ErrNotFound
		}
		return roster.Roster{}, fmt.Errorf("get roster: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT user_id, character_id, character_name
		 FROM roster_participants WHERE campaign_id = ? ORDER BY position`,
		campaignID,
	)
	if err != nil {
		return roster.Roster{}, fmt.Errorf("list roster participants: %w", err)
	}
	defer rows.Close()

	var participants []roster.Participant
	for rows.Next() {
		var p roster.Participant
		if err := rows.Scan(&p.UserID, &p.CharacterID, &p.CharacterName); err != nil {
			return roster.Roster{}, fmt.Errorf("scan roster participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return roster.Roster{}, fmt.Errorf("list roster participants: %w", err)
	}

	return roster.Roster{
		CampaignID:   campaignID,
		Active:       active != 0,
		Participants: participants,
		StartedAt:    fromNullMillis(startedAt),
		StartedBy:    startedBy,
	}, nil
}

// ListActiveCampaignsForCharacter returns campaign ids whose active roster
// lists the character.
func (s *Store) ListActiveCampaignsForCharacter(ctx context.Context, userID, characterID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(characterID) == "" {
		return nil, fmt.Errorf("character id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT p.campaign_id
		 FROM roster_participants p
		 JOIN campaign_rosters r ON r.campaign_id = p.campaign_id
		 WHERE r.active = 1 AND p.user_id = ? AND p.character_id = ?
		 ORDER BY p.campaign_id`,
		userID, characterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var campaignIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		campaignIDs = append(campaignIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return campaignIDs, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
