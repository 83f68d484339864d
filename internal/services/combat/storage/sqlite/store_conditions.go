package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/veilbound/companion/internal/services/combat/storage"
)

// Condition methods.

// AppendCondition persists a character condition marker.
func (s *Store) AppendCondition(ctx context.Context, record storage.ConditionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append condition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendConditionTx(ctx, tx, record, time.Now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append condition: %w", err)
	}
	return nil
}

// ListConditions returns condition markers for a character in applied order.
func (s *Store) ListConditions(ctx context.Context, campaignID, characterID string) ([]storage.ConditionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if strings.TrimSpace(characterID) == "" {
		return nil, fmt.Errorf("character id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT campaign_id, user_id, character_id, name, rounds, applied_at
		 FROM character_conditions
		 WHERE campaign_id = ? AND character_id = ?
		 ORDER BY id`,
		campaignID, characterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conditions: %w", err)
	}
	defer rows.Close()

	var records []storage.ConditionRecord
	for rows.Next() {
		var (
			record    storage.ConditionRecord
			appliedAt int64
		)
		if err := rows.Scan(&record.CampaignID, &record.UserID, &record.CharacterID,
			&record.Name, &record.Rounds, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		record.AppliedAt = fromMillis(appliedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conditions: %w", err)
	}
	return records, nil
}

func appendConditionTx(ctx context.Context, tx *sql.Tx, record storage.ConditionRecord, now time.Time) error {
	if strings.TrimSpace(record.CampaignID) == "" {
		return fmt.Errorf("condition campaign id is required")
	}
	if strings.TrimSpace(record.CharacterID) == "" {
		return fmt.Errorf("condition character id is required")
	}
	if strings.TrimSpace(record.Name) == "" {
		return fmt.Errorf("condition name is required")
	}
	appliedAt := record.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = now
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO character_conditions (campaign_id, user_id, character_id, name, rounds, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.CampaignID, record.UserID, record.CharacterID,
		record.Name, record.Rounds, toMillis(appliedAt),
	); err != nil {
		return fmt.Errorf("write condition: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
