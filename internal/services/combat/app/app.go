// Package app wires the combat service: store, feed hub, optional Redis
// relay, session registry, round processor, and HTTP transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/api/httpapi"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/feed"
	"github.com/veilbound/companion/internal/services/combat/mirror"
	"github.com/veilbound/companion/internal/services/combat/round"
	"github.com/veilbound/companion/internal/services/combat/session"
	"github.com/veilbound/companion/internal/services/combat/storage"
	"github.com/veilbound/companion/internal/services/combat/storage/sqlite"
	combatsync "github.com/veilbound/companion/internal/services/combat/sync"
)

// Config carries the application settings.
type Config struct {
	HTTPAddr     string
	DatabasePath string
	RedisAddr    string
	SyncDebounce time.Duration
}

type syncerHandle struct {
	syncer *combatsync.Syncer
	cancel context.CancelFunc
}

// App is the assembled combat service.
type App struct {
	store     storage.Store
	hub       *feed.Hub
	relay     *feed.RedisRelay
	registry  *session.Registry
	processor *round.Processor
	server    *http.Server
	debounce  time.Duration

	mu      stdsync.Mutex
	syncers map[string]syncerHandle
}

// New opens the store and assembles the service. The returned app serves
// nothing until Run is called.
func New(ctx context.Context, cfg Config) (*App, error) {
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open combat store: %w", err)
	}

	a := &App{
		store:    store,
		hub:      feed.NewHub(),
		registry: session.NewRegistry(),
		debounce: cfg.SyncDebounce,
		syncers:  make(map[string]syncerHandle),
	}
	a.processor = round.NewProcessor(store, a.hub)

	if cfg.RedisAddr != "" {
		relay, err := feed.NewRedisRelay(ctx, cfg.RedisAddr, a.hub)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect feed relay: %w", err)
		}
		a.relay = relay
	}

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Run serves until ctx is canceled, then shuts down the transport and closes
// the store.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})

	if a.relay != nil {
		group.Go(func() error {
			err := a.relay.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		log.Printf("serving http on %s", a.server.Addr)
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := group.Wait()

	if a.relay != nil {
		_ = a.relay.Close()
	}
	if closeErr := a.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// CreateSession opens a live session and attaches its mirror syncer.
func (a *App) CreateSession(ctx context.Context, in session.StartInput, debounce time.Duration) (*session.Session, error) {
	if debounce <= 0 {
		debounce = a.debounce
	}

	live, err := a.registry.Create(in)
	if err != nil {
		return nil, err
	}

	syncer := combatsync.New(live, a.store, a.hub, live.UserID, live.CharacterID, debounce)
	live.SetObserver(syncer)

	pullCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		if err := syncer.Run(pullCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("session %s feed pull: %v", live.ID, err)
		}
	}()

	a.mu.Lock()
	a.syncers[live.ID] = syncerHandle{syncer: syncer, cancel: cancel}
	a.mu.Unlock()

	return live, nil
}

// GetSession returns a live session by id.
func (a *App) GetSession(sessionID string) (*session.Session, error) {
	return a.registry.Get(sessionID)
}

// EndSession closes a session. A push pending in the debounce window is
// dropped, not flushed.
func (a *App) EndSession(sessionID string) error {
	a.mu.Lock()
	handle, ok := a.syncers[sessionID]
	if ok {
		delete(a.syncers, sessionID)
	}
	a.mu.Unlock()

	if ok {
		handle.syncer.Stop()
		handle.cancel()
	}
	return a.registry.End(sessionID)
}

// StartCombat opens combat for a campaign with the given roster.
func (a *App) StartCombat(ctx context.Context, campaignID, startedBy string, participants []roster.Participant) (roster.Roster, error) {
	existing, err := a.store.GetRoster(ctx, campaignID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return roster.Roster{}, err
	}
	if err == nil && existing.Active {
		return roster.Roster{}, roster.ErrAlreadyActive
	}

	started, err := roster.Start(campaignID, startedBy, participants, time.Now())
	if err != nil {
		return roster.Roster{}, err
	}
	if err := a.store.PutRoster(ctx, started); err != nil {
		return roster.Roster{}, err
	}

	a.announce(ctx, feed.EventCombatStarted, campaignID, started)
	return started, nil
}

// StopCombat closes combat for a campaign. Only the starter may stop it.
func (a *App) StopCombat(ctx context.Context, campaignID, userID string) (roster.Roster, error) {
	current, err := a.currentActiveRoster(ctx, campaignID)
	if err != nil {
		return roster.Roster{}, err
	}
	if err := a.requireStarter(current, userID); err != nil {
		return roster.Roster{}, err
	}

	stopped := current.Stop()
	if err := a.store.PutRoster(ctx, stopped); err != nil {
		return roster.Roster{}, err
	}

	a.announce(ctx, feed.EventCombatStopped, campaignID, stopped)
	return stopped, nil
}

// SetParticipants replaces the active roster membership.
func (a *App) SetParticipants(ctx context.Context, campaignID, userID string, participants []roster.Participant) (roster.Roster, error) {
	current, err := a.currentActiveRoster(ctx, campaignID)
	if err != nil {
		return roster.Roster{}, err
	}
	if err := a.requireStarter(current, userID); err != nil {
		return roster.Roster{}, err
	}

	updated, err := current.WithParticipants(participants)
	if err != nil {
		return roster.Roster{}, err
	}
	if err := a.store.PutRoster(ctx, updated); err != nil {
		return roster.Roster{}, err
	}

	a.announce(ctx, feed.EventRosterUpdated, campaignID, updated)
	return updated, nil
}

// CombatState returns the roster and all mirror documents for a campaign.
func (a *App) CombatState(ctx context.Context, campaignID string) (roster.Roster, []mirror.Document, error) {
	current, err := a.store.GetRoster(ctx, campaignID)
	if err != nil {
		return roster.Roster{}, nil, err
	}
	docs, err := a.store.ListMirrors(ctx, campaignID)
	if err != nil {
		return roster.Roster{}, nil, err
	}
	return current, docs, nil
}

// AdvanceRound runs the GM round advancement batch.
func (a *App) AdvanceRound(ctx context.Context, campaignID, userID string) (round.Outcome, error) {
	return a.processor.Advance(ctx, campaignID, userID)
}

// Feed returns the campaign event hub.
func (a *App) Feed() *feed.Hub {
	return a.hub
}

func (a *App) currentActiveRoster(ctx context.Context, campaignID string) (roster.Roster, error) {
	current, err := a.store.GetRoster(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return roster.Roster{}, roster.ErrNotActive
		}
		return roster.Roster{}, err
	}
	if !current.Active {
		return roster.Roster{}, roster.ErrNotActive
	}
	return current, nil
}

func (a *App) requireStarter(r roster.Roster, userID string) error {
	if userID == "" || userID != r.StartedBy {
		return apperrors.New(apperrors.CodeRoundNotGM, "only the participant who started combat can manage it")
	}
	return nil
}

func (a *App) announce(ctx context.Context, eventType, campaignID string, payload any) {
	event, err := feed.NewEvent(eventType, campaignID, payload)
	if err != nil {
		log.Printf("build %s event: %v", eventType, err)
		return
	}
	if err := a.hub.Publish(ctx, event); err != nil {
		log.Printf("publish %s event: %v", eventType, err)
	}
}

var _ httpapi.Service = (*App)(nil)
