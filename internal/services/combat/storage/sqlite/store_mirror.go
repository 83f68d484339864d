package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/veilbound/companion/internal/services/combat/mirror"
	"github.com/veilbound/companion/internal/services/combat/storage"
)

// Mirror document methods.

// GetMirror fetches a mirror document by campaign and key.
func (s *Store) GetMirror(ctx context.Context, campaignID, key string) (mirror.Document, error) {
	if err := ctx.Err(); err != nil {
		return mirror.Document{}, err
	}
	if s == nil || s.sqlDB == nil {
		return mirror.Document{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaignID) == "" {
		return mirror.Document{}, fmt.Errorf("campaign id is required")
	}
	if strings.TrimSpace(key) == "" {
		return mirror.Document{}, fmt.Errorf("document key is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT document, revision, last_writer, updated_at
		 FROM character_mirrors WHERE campaign_id = ? AND doc_key = ?`,
		campaignID, key,
	)
	doc, err := scanMirror(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mirror.Document{}, storage.ErrNotFound
		}
		return mirror.Document{}, fmt.Errorf("get mirror: %w", err)
	}
	return doc, nil
}

// ListMirrors returns all mirror documents for a campaign in key order.
func (s *Store) ListMirrors(ctx context.Context, campaignID string) ([]mirror.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT document, revision, last_writer, updated_at
		 FROM character_mirrors WHERE campaign_id = ? ORDER BY doc_key`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	var docs []mirror.Document
	for rows.Next() {
		doc, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	return docs, nil
}

// MergeMirror overlays the document onto any existing revision per the
// ownership policy, bumps the revision, and returns the stored result.
func (s *Store) MergeMirror(ctx context.Context, campaignID string, doc mirror.Document, writer mirror.Writer) (mirror.Document, error) {
	if err := ctx.Err(); err != nil {
		return mirror.Document{}, err
	}
	if s == nil || s.sqlDB == nil {
		return mirror.Document{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaignID) == "" {
		return mirror.Document{}, fmt.Errorf("campaign id is required")
	}
	if strings.TrimSpace(doc.UserID) == "" || strings.TrimSpace(doc.CharacterID) == "" {
		return mirror.Document{}, fmt.Errorf("document user id and character id are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return mirror.Document{}, fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := mergeMirrorTx(ctx, tx, campaignID, doc, writer, time.Now())
	if err != nil {
		return mirror.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return mirror.Document{}, fmt.Errorf("commit merge: %w", err)
	}
	return stored, nil
}

// ApplyRound commits a round advancement batch and its condition markers in
// one transaction. Any failure rolls back every combatant update.
func (s *Store) ApplyRound(ctx context.Context, campaignID string, docs []mirror.Document, conditions []storage.ConditionRecord) ([]mirror.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin round: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	stored := make([]mirror.Document, 0, len(docs))
	for _, doc := range docs {
		merged, err := mergeMirrorTx(ctx, tx, campaignID, doc, mirror.WriterGM, now)
		if err != nil {
			return nil, err
		}
		stored = append(stored, merged)
	}
	for _, record := range conditions {
		if err := appendConditionTx(ctx, tx, record, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit round: %w", err)
	}
	return stored, nil
}

func mergeMirrorTx(ctx context.Context, tx *sql.Tx, campaignID string, doc mirror.Document, writer mirror.Writer, now time.Time) (mirror.Document, error) {
	key := doc.Key()

	row := tx.QueryRowContext(ctx,
		`SELECT document, revision, last_writer, updated_at
		 FROM character_mirrors WHERE campaign_id = ? AND doc_key = ?`,
		campaignID, key,
	)
	existing, err := scanMirror(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = mirror.Document{}
	case err != nil:
		return mirror.Document{}, fmt.Errorf("read mirror for merge: %w", err)
	}

	merged := mirror.Merge(existing, doc, writer)
	merged.Revision = existing.Revision + 1
	merged.UpdatedAt = toMillis(now)

	payload, err := json.Marshal(merged)
	if err != nil {
		return mirror.Document{}, fmt.Errorf("marshal mirror: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO character_mirrors (campaign_id, doc_key, user_id, character_id, document, revision, last_writer, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(campaign_id, doc_key) DO UPDATE SET
		   document = excluded.document,
		   revision = excluded.revision,
		   last_writer = excluded.last_writer,
		   updated_at = excluded.updated_at`,
		campaignID, key, merged.UserID, merged.CharacterID, string(payload),
		merged.Revision, string(merged.LastWriter), merged.UpdatedAt,
	); err != nil {
		return mirror.Document{}, fmt.Errorf("write mirror: %w", err)
	}
	return merged, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMirror(row rowScanner) (mirror.Document, error) {
	var (
		payload    string
		revision   int64
		lastWriter string
		updatedAt  int64
	)
	if err := row.Scan(&payload, &revision, &lastWriter, &updatedAt); err != nil {
		return mirror.Document{}, err
	}

	var doc mirror.Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return mirror.Document{}, fmt.Errorf("unmarshal mirror document: %w", err)
	}
	doc.Revision = revision
	doc.LastWriter = mirror.Writer(lastWriter)
	doc.UpdatedAt = updatedAt
	return doc, nil
}
