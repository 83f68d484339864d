package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/veilbound/companion/internal/services/combat/feed"
	"github.com/veilbound/companion/internal/services/combat/mirror"
	"github.com/veilbound/companion/internal/services/combat/storage"
)

type fakeSession struct {
	mu     stdsync.Mutex
	doc    mirror.Document
	folded []mirror.Document
}

func (f *fakeSession) Snapshot(_ time.Time) mirror.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

func (f *fakeSession) ApplyRemote(doc mirror.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folded = append(f.folded, doc)
}

func (f *fakeSession) set(doc mirror.Document) {
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
}

type fakeStore struct {
	mu        stdsync.Mutex
	campaigns []string
	stored    map[string]mirror.Document
	merges    int
}

func newFakeStore(campaigns ...string) *fakeStore {
	return &fakeStore{campaigns: campaigns, stored: make(map[string]mirror.Document)}
}

func (f *fakeStore) GetMirror(_ context.Context, campaignID, key string) (mirror.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.stored[campaignID+"/"+key]
	if !ok {
		return mirror.Document{}, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) MergeMirror(_ context.Context, campaignID string, doc mirror.Document, writer mirror.Writer) (mirror.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.stored[campaignID+"/"+doc.Key()]
	merged := mirror.Merge(existing, doc, writer)
	merged.Revision = existing.Revision + 1
	f.stored[campaignID+"/"+doc.Key()] = merged
	f.merges++
	return merged, nil
}

func (f *fakeStore) ListActiveCampaignsForCharacter(_ context.Context, _, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.campaigns...), nil
}

func (f *fakeStore) mergeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.merges
}

func (f *fakeStore) storedDoc(campaignID, key string) mirror.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[campaignID+"/"+key]
}

func runTestHub(t *testing.T) *feed.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := feed.NewHub()
	go hub.Run(ctx)
	return hub
}

func testDoc(effort int) mirror.Document {
	return mirror.Document{
		UserID:       "user-1",
		CharacterID:  "char-1",
		Level:        10,
		CurrentStats: mirror.Stats{Health: 30, Energy: 100, Effort: effort},
		MaxStats:     mirror.Stats{Health: 40, Energy: 150, Effort: 8},
	}
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChangedCoalescesBurstIntoOnePush(t *testing.T) {
	session := &fakeSession{}
	store := newFakeStore("camp-1")
	syncer := New(session, store, runTestHub(t), "user-1", "char-1", 30*time.Millisecond)

	for effort := 8; effort >= 5; effort-- {
		session.set(testDoc(effort))
		syncer.Changed()
	}

	waitFor(t, "debounced push", func() bool { return store.mergeCount() == 1 })

	stored := store.storedDoc("camp-1", "user-1_char-1")
	if stored.CurrentStats.Effort != 5 {
		t.Fatalf("expected final effort 5 pushed, got %d", stored.CurrentStats.Effort)
	}

	time.Sleep(60 * time.Millisecond)
	if got := store.mergeCount(); got != 1 {
		t.Fatalf("expected exactly 1 merge, got %d", got)
	}
}

func TestChangedSkipsUnchangedSnapshot(t *testing.T) {
	session := &fakeSession{}
	store := newFakeStore("camp-1")
	syncer := New(session, store, runTestHub(t), "user-1", "char-1", 10*time.Millisecond)

	session.set(testDoc(8))
	syncer.Changed()
	waitFor(t, "first push", func() bool { return store.mergeCount() == 1 })

	syncer.Changed()
	time.Sleep(40 * time.Millisecond)
	if got := store.mergeCount(); got != 1 {
		t.Fatalf("expected no push for unchanged snapshot, got %d merges", got)
	}
}

func TestStopMidDebouncePushesNothing(t *testing.T) {
	session := &fakeSession{}
	store := newFakeStore("camp-1")
	syncer := New(session, store, runTestHub(t), "user-1", "char-1", 30*time.Millisecond)

	session.set(testDoc(8))
	syncer.Changed()
	syncer.Stop()

	time.Sleep(80 * time.Millisecond)
	if got := store.mergeCount(); got != 0 {
		t.Fatalf("expected no push after stop, got %d merges", got)
	}
}

func TestPushFansOutToAllActiveCampaigns(t *testing.T) {
	session := &fakeSession{}
	store := newFakeStore("camp-1", "camp-2")
	syncer := New(session, store, runTestHub(t), "user-1", "char-1", time.Millisecond)

	session.set(testDoc(8))
	syncer.Changed()

	waitFor(t, "fan-out", func() bool { return store.mergeCount() == 2 })
	for _, campaignID := range []string{"camp-1", "camp-2"} {
		if store.storedDoc(campaignID, "user-1_char-1").CurrentStats.Effort != 8 {
			t.Fatalf("expected doc in %s", campaignID)
		}
	}
}

func TestRemoteGMRevisionMarksPendingPushStale(t *testing.T) {
	session := &fakeSession{}
	store := newFakeStore("camp-1")
	hub := runTestHub(t)
	syncer := New(session, store, hub, "user-1", "char-1", 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = syncer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	// GM advances the domain in the store while the local snapshot still
	// carries the previous round.
	gmDoc := testDoc(6)
	gmDoc.DomainActive = true
	gmDoc.DomainRound = 3
	gmDoc.DomainKind = "complete"
	if _, err := store.MergeMirror(ctx, "camp-1", gmDoc, mirror.WriterGM); err != nil {
		t.Fatalf("gm merge: %v", err)
	}

	staleLocal := testDoc(5)
	staleLocal.DomainActive = true
	staleLocal.DomainRound = 2
	staleLocal.DomainKind = "complete"
	session.set(staleLocal)
	syncer.Changed()

	storedGM := store.storedDoc("camp-1", "user-1_char-1")
	event, err := feed.NewEvent(feed.EventRoundAdvanced, "camp-1", storedGM)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := hub.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "stale-aware push", func() bool { return store.mergeCount() >= 2 })

	stored := store.storedDoc("camp-1", "user-1_char-1")
	if stored.DomainRound != 3 {
		t.Fatalf("expected GM round 3 preserved, got %d", stored.DomainRound)
	}
	if stored.CurrentStats.Effort != 5 {
		t.Fatalf("expected local effort 5 pushed, got %d", stored.CurrentStats.Effort)
	}

	session.mu.Lock()
	folded := len(session.folded)
	session.mu.Unlock()
	if folded != 1 {
		t.Fatalf("expected 1 remote fold, got %d", folded)
	}
}
