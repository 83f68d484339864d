// Package sync keeps a live session and its campaign mirror documents
// aligned. The push path coalesces local mutations behind a debounce timer;
// the pull path folds GM-authored revisions from the feed back into the
// session.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veilbound/companion/internal/services/combat/feed"
	"github.com/veilbound/companion/internal/services/combat/mirror"
)

// DefaultDebounce is the push coalescing window.
const DefaultDebounce = 800 * time.Millisecond

const pushTimeout = 5 * time.Second

// Session is the live state the syncer snapshots and folds remote revisions
// into.
type Session interface {
	Snapshot(now time.Time) mirror.Document
	ApplyRemote(doc mirror.Document)
}

// Store is the storage surface the syncer pushes through.
type Store interface {
	GetMirror(ctx context.Context, campaignID, key string) (mirror.Document, error)
	MergeMirror(ctx context.Context, campaignID string, doc mirror.Document, writer mirror.Writer) (mirror.Document, error)
	ListActiveCampaignsForCharacter(ctx context.Context, userID, characterID string) ([]string, error)
}

// Syncer mirrors one session into every active campaign listing its
// character. It implements session.Observer.
type Syncer struct {
	session  Session
	store    Store
	hub      *feed.Hub
	debounce time.Duration

	userID      string
	characterID string

	mu          stdsync.Mutex
	timer       *time.Timer
	lastPushed  []byte
	staleDomain bool
	stopped     bool
}

// New builds a syncer for the session's character. A non-positive debounce
// falls back to DefaultDebounce.
func New(session Session, store Store, hub *feed.Hub, userID, characterID string, debounce time.Duration) *Syncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Syncer{
		session:     session,
		store:       store,
		hub:         hub,
		debounce:    debounce,
		userID:      userID,
		characterID: characterID,
	}
}

// Changed schedules a debounced push. A snapshot identical to the last acked
// push schedules nothing; an already pending timer is replaced so bursts
// coalesce into one write.
func (s *Syncer) Changed() {
	snapshot := s.session.Snapshot(time.Now())
	encoded, err := snapshot.Encode()
	if err != nil {
		log.Printf("encode mirror snapshot: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if bytes.Equal(encoded, s.lastPushed) {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// Stop cancels any pending push. A session ending mid-debounce pushes
// nothing.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Flush pushes immediately, bypassing the debounce window.
func (s *Syncer) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	stale := s.staleDomain
	s.staleDomain = false
	s.mu.Unlock()

	s.push(ctx, stale)
}

func (s *Syncer) flush() {
	s.mu.Lock()
	s.timer = nil
	stale := s.staleDomain
	s.staleDomain = false
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	s.push(ctx, stale)
}

// push merge-writes the current snapshot into every active campaign. Failed
// writes are logged; the next mutation supersedes them.
func (s *Syncer) push(ctx context.Context, stale bool) {
	doc := s.session.Snapshot(time.Now())
	encoded, err := doc.Encode()
	if err != nil {
		log.Printf("encode mirror snapshot: %v", err)
		return
	}

	s.mu.Lock()
	unchanged := bytes.Equal(encoded, s.lastPushed)
	s.mu.Unlock()
	if unchanged {
		return
	}

	campaigns, err := s.store.ListActiveCampaignsForCharacter(ctx, s.userID, s.characterID)
	if err != nil {
		log.Printf("list campaigns for mirror push: %v", err)
		return
	}

	failed := false
	for _, campaignID := range campaigns {
		push := doc
		if stale {
			push = s.dropStaleDomain(ctx, campaignID, push)
		}

		stored, err := s.store.MergeMirror(ctx, campaignID, push, mirror.WriterPlayer)
		if err != nil {
			log.Printf("push mirror to campaign %s: %v", campaignID, err)
			failed = true
			continue
		}

		event, err := feed.NewEvent(feed.EventMirrorUpdated, campaignID, stored)
		if err != nil {
			log.Printf("build mirror event: %v", err)
			continue
		}
		if err := s.hub.Publish(ctx, event); err != nil {
			log.Printf("publish mirror event: %v", err)
		}
	}

	if !failed {
		s.mu.Lock()
		s.lastPushed = encoded
		s.mu.Unlock()
	}
}

// dropStaleDomain overlays the stored GM domain fields onto a snapshot taken
// before the remote round advance was observed, so the push cannot roll the
// expansion back.
func (s *Syncer) dropStaleDomain(ctx context.Context, campaignID string, doc mirror.Document) mirror.Document {
	stored, err := s.store.GetMirror(ctx, campaignID, doc.Key())
	if err != nil {
		log.Printf("read mirror for stale overlay: %v", err)
		return doc
	}
	doc.DomainActive = stored.DomainActive
	doc.DomainRound = stored.DomainRound
	doc.DomainKind = stored.DomainKind
	return doc
}

// Run subscribes to the feed of every active campaign listing the character
// and folds GM revisions into the session until ctx is canceled.
func (s *Syncer) Run(ctx context.Context) error {
	campaigns, err := s.store.ListActiveCampaignsForCharacter(ctx, s.userID, s.characterID)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, campaignID := range campaigns {
		campaignID := campaignID
		group.Go(func() error {
			return s.consumeFeed(ctx, campaignID)
		})
	}
	return group.Wait()
}

func (s *Syncer) consumeFeed(ctx context.Context, campaignID string) error {
	sub, err := s.hub.Subscribe(ctx, campaignID)
	if err != nil {
		return err
	}
	defer s.hub.Unsubscribe(context.WithoutCancel(ctx), sub)

	key := mirror.Document{UserID: s.userID, CharacterID: s.characterID}.Key()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sub.Events:
			if !ok {
				return nil
			}
			event, err := feed.DecodeEvent(frame)
			if err != nil {
				log.Printf("decode feed frame: %v", err)
				continue
			}
			if event.Type != feed.EventMirrorUpdated && event.Type != feed.EventRoundAdvanced {
				continue
			}
			var doc mirror.Document
			if err := json.Unmarshal(event.Payload, &doc); err != nil {
				log.Printf("decode mirror payload: %v", err)
				continue
			}
			if doc.Key() != key || doc.LastWriter != mirror.WriterGM {
				continue
			}
			s.observeRemote(doc)
		}
	}
}

// observeRemote folds a GM revision into the session. A push pending in the
// debounce window is marked stale so its domain fields are dropped at flush
// time; the remote round advance wins.
func (s *Syncer) observeRemote(doc mirror.Document) {
	s.mu.Lock()
	if s.timer != nil {
		s.staleDomain = true
	}
	s.mu.Unlock()

	s.session.ApplyRemote(doc)
}
