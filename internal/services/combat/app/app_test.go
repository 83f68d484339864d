package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/domain/sheet"
	"github.com/veilbound/companion/internal/services/combat/session"
)

func runTestApp(t *testing.T) *App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := New(ctx, Config{
		HTTPAddr:     "127.0.0.1:0",
		DatabasePath: filepath.Join(t.TempDir(), "combat.db"),
		SyncDebounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("timed out waiting for shutdown")
		}
	})
	return a
}

func TestNewRequiresDatabasePath(t *testing.T) {
	if _, err := New(context.Background(), Config{HTTPAddr: ":0"}); err == nil {
		t.Fatal("expected error for missing database path")
	}
}

func TestCombatLifecycle(t *testing.T) {
	a := runTestApp(t)
	ctx := context.Background()

	participants := []roster.Participant{{UserID: "user-1", CharacterID: "char-1", CharacterName: "Aiko"}}
	started, err := a.StartCombat(ctx, "camp-1", "gm-1", participants)
	if err != nil {
		t.Fatalf("start combat: %v", err)
	}
	if !started.Active || started.StartedBy != "gm-1" {
		t.Fatalf("unexpected roster: %+v", started)
	}

	if _, err := a.StartCombat(ctx, "camp-1", "gm-1", participants); !apperrors.IsCode(err, apperrors.CodeRosterAlreadyActive) {
		t.Fatalf("expected already-active error, got %v", err)
	}

	live, err := a.CreateSession(ctx, session.StartInput{
		UserID:        "user-1",
		CharacterID:   "char-1",
		CharacterName: "Aiko",
		Profile: sheet.Profile{
			Level:      10,
			Attributes: sheet.Attributes{Vigor: 3, Presence: 2},
		},
	}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := live.Consume(pool.FieldHealth, 5); err != nil {
		t.Fatalf("consume: %v", err)
	}

	// The debounced syncer mirrors the session into the active campaign.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, docs, err := a.CombatState(ctx, "camp-1"); err == nil && len(docs) == 1 {
			if docs[0].CurrentStats.Health != live.Pool().Health {
				t.Fatalf("expected mirrored health %d, got %d", live.Pool().Health, docs[0].CurrentStats.Health)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for mirror push")
		}
		time.Sleep(10 * time.Millisecond)
	}

	outcome, err := a.AdvanceRound(ctx, "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if len(outcome.Documents) != 1 {
		t.Fatalf("expected 1 advanced document, got %d", len(outcome.Documents))
	}

	if _, err := a.AdvanceRound(ctx, "camp-1", "user-1"); !apperrors.IsCode(err, apperrors.CodeRoundNotGM) {
		t.Fatalf("expected not-gm error, got %v", err)
	}

	if err := a.EndSession(live.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}

	stopped, err := a.StopCombat(ctx, "camp-1", "gm-1")
	if err != nil {
		t.Fatalf("stop combat: %v", err)
	}
	if stopped.Active || len(stopped.Participants) != 0 {
		t.Fatalf("expected cleared roster, got %+v", stopped)
	}
}
