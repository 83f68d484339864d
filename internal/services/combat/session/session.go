// Package session holds the authoritative live combat state for one selected
// character. All mutations go through the pure domain resolution functions;
// the session only adds locking, observer notification, and remote folding.
package session

import (
	"sync"
	"time"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/ability"
	"github.com/veilbound/companion/internal/services/combat/domain/expansion"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
	"github.com/veilbound/companion/internal/services/combat/domain/sheet"
	"github.com/veilbound/companion/internal/services/combat/mirror"
)

// Observer is notified after every successful local mutation. The syncer
// implements it to schedule a mirror push.
type Observer interface {
	Changed()
}

// Condition is a locally tracked penalty marker, appended when a domain
// expansion closes within the session.
type Condition struct {
	Name   string `json:"name"`
	Rounds int    `json:"rounds"`
}

// ConditionExhaustion names the post-expansion penalty marker.
const ConditionExhaustion = "exhaustion"

// StartInput carries the character selection needed to open a session.
type StartInput struct {
	UserID        string
	CharacterID   string
	CharacterName string
	ImageURL      string
	Profile       sheet.Profile
	Current       pool.Pool
}

// Session is the live state of one character in combat. Safe for concurrent
// use.
type Session struct {
	ID            string
	UserID        string
	CharacterID   string
	CharacterName string
	ImageURL      string
	Profile       sheet.Profile

	mu         sync.Mutex
	pool       pool.Pool
	maxima     pool.Maxima
	buffs      ability.BuffSet
	domain     expansion.State
	conditions []Condition
	observer   Observer
	ended      bool
}

// New opens a session for the selected character. The current pool is
// reconciled against the derived maxima before any play happens.
func New(id string, in StartInput) (*Session, error) {
	if in.UserID == "" {
		return nil, apperrors.New(apperrors.CodeSessionEmptyUserID, "user id is required")
	}
	if in.CharacterID == "" {
		return nil, apperrors.New(apperrors.CodeSessionEmptyCharacterID, "character id is required")
	}
	maxima, err := sheet.DeriveMaxima(in.Profile)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:            id,
		UserID:        in.UserID,
		CharacterID:   in.CharacterID,
		CharacterName: in.CharacterName,
		ImageURL:      in.ImageURL,
		Profile:       in.Profile,
		pool:          pool.ReconcileToMaxima(in.Current, maxima),
		maxima:        maxima,
	}, nil
}

// SetObserver attaches the mutation observer. Pass nil to detach.
func (s *Session) SetObserver(observer Observer) {
	s.mu.Lock()
	s.observer = observer
	s.mu.Unlock()
}

// Pool returns the current resource pool.
func (s *Session) Pool() pool.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// Maxima returns the derived pool maxima.
func (s *Session) Maxima() pool.Maxima {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxima
}

// Domain returns the current expansion state.
func (s *Session) Domain() expansion.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domain
}

// QueuedBuffs returns the queued abilities in toggle order.
func (s *Session) QueuedBuffs() []ability.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffs.Queued()
}

// Conditions returns the locally tracked condition markers.
func (s *Session) Conditions() []Condition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Condition(nil), s.conditions...)
}

// Consume spends an amount from one gauge.
func (s *Session) Consume(field pool.Field, amount int) (pool.Pool, error) {
	s.mu.Lock()
	updated, err := pool.Consume(s.pool, field, amount)
	if err != nil {
		s.mu.Unlock()
		return pool.Pool{}, err
	}
	s.pool = updated
	observer := s.observer
	s.mu.Unlock()

	notify(observer)
	return updated, nil
}

// SetCurrent sets one gauge directly.
func (s *Session) SetCurrent(field pool.Field, value int) (pool.Pool, error) {
	s.mu.Lock()
	updated, err := pool.SetCurrent(s.pool, field, value)
	if err != nil {
		s.mu.Unlock()
		return pool.Pool{}, err
	}
	s.pool = updated
	observer := s.observer
	s.mu.Unlock()

	notify(observer)
	return updated, nil
}

// ToggleBuff flips an ability's queued state, charging on toggle-on.
func (s *Session) ToggleBuff(ref ability.Ref) (ability.ToggleOutcome, error) {
	s.mu.Lock()
	outcome, err := ability.Toggle(s.buffs, ref, s.pool)
	if err != nil {
		s.mu.Unlock()
		return ability.ToggleOutcome{}, err
	}
	s.buffs = outcome.Set
	s.pool = outcome.Pool
	observer := s.observer
	s.mu.Unlock()

	notify(observer)
	return outcome, nil
}

// InvokeAbility charges a non-queueable ability for immediate use.
func (s *Session) InvokeAbility(ref ability.Ref) (pool.Pool, error) {
	s.mu.Lock()
	updated, err := ability.Invoke(ref, s.pool)
	if err != nil {
		s.mu.Unlock()
		return pool.Pool{}, err
	}
	s.pool = updated
	observer := s.observer
	s.mu.Unlock()

	notify(observer)
	return updated, nil
}

// ResolveSkillRoll fires queued buffs matching the rolled skill.
func (s *Session) ResolveSkillRoll(skillName string) ability.ResolveOutcome {
	s.mu.Lock()
	outcome := ability.ResolveOnSkillRoll(s.buffs, skillName, s.pool)
	s.buffs = outcome.Set
	s.pool = outcome.Pool
	observer := s.observer
	changed := len(outcome.Fired) > 0
	s.mu.Unlock()

	if changed {
		notify(observer)
	}
	return outcome
}

// ActivateDomain starts a domain expansion, charging energy.
func (s *Session) ActivateDomain(kind expansion.Kind, cost, requiredLevel int) (expansion.ActivateOutcome, error) {
	s.mu.Lock()
	outcome, err := expansion.Activate(s.domain, s.pool, s.Profile.Level, kind, cost, requiredLevel)
	if err != nil {
		s.mu.Unlock()
		return expansion.ActivateOutcome{}, err
	}
	s.domain = outcome.State
	s.pool = outcome.Pool
	observer := s.observer
	s.mu.Unlock()

	notify(observer)
	return outcome, nil
}

// AdvanceDomain moves the expansion to the next round, applying maintenance.
func (s *Session) AdvanceDomain(force bool) (expansion.AdvanceOutcome, error) {
	s.mu.Lock()
	outcome, err := expansion.AdvanceRound(s.domain, s.pool, force)
	if err != nil {
		s.mu.Unlock()
		return expansion.AdvanceOutcome{}, err
	}
	s.domain = outcome.State
	s.pool = outcome.Pool
	if outcome.Exhaustion != nil {
		s.conditions = append(s.conditions, Condition{
			Name:   ConditionExhaustion,
			Rounds: outcome.Exhaustion.Rounds,
		})
	}
	observer := s.observer
	changed := outcome.Advanced || outcome.Closed
	s.mu.Unlock()

	if changed {
		notify(observer)
	}
	return outcome, nil
}

// CloseDomain ends the expansion and records the exhaustion marker.
func (s *Session) CloseDomain() (expansion.CloseOutcome, error) {
	s.mu.Lock()
	outcome, err := expansion.Close(s.domain)
	if err != nil {
		s.mu.Unlock()
		return expansion.CloseOutcome{}, err
	}
	s.domain = outcome.State
	s.conditions = append(s.conditions, Condition{
		Name:   ConditionExhaustion,
		Rounds: outcome.Exhaustion.Rounds,
	})
	observer := s.observer
	s.mu.Unlock()

	notify(observer)
	return outcome, nil
}

// Snapshot serializes the live state into a mirror document.
func (s *Session) Snapshot(now time.Time) mirror.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mirror.Snapshot(mirror.SnapshotInput{
		UserID:            s.UserID,
		CharacterID:       s.CharacterID,
		CharacterName:     s.CharacterName,
		Level:             s.Profile.Level,
		ImageURL:          s.ImageURL,
		CharacterClass:    s.Profile.Class,
		Origin:            s.Profile.Origin,
		PresenceAttribute: s.Profile.Attributes.Presence,
		Pool:              s.pool,
		Maxima:            s.maxima,
		Domain:            s.domain,
		UpdatedAt:         now,
	})
}

// ApplyRemote folds a GM-authored mirror revision into the local state:
// round advancement adopts the remote round and energy/effort, and a remote
// deactivation closes the local expansion with its exhaustion marker.
// Player-authored revisions are ignored; the session is their source.
func (s *Session) ApplyRemote(doc mirror.Document) {
	if doc.LastWriter != mirror.WriterGM {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remotePool, remoteDomain := doc.Hydrate()

	if remoteDomain.Active && s.domain.Active && remoteDomain.Round != s.domain.Round {
		s.domain.Round = remoteDomain.Round
		s.pool.Energy = remotePool.Energy
		s.pool.Effort = remotePool.Effort
	}

	if !remoteDomain.Active && s.domain.Active {
		if outcome, err := expansion.Close(s.domain); err == nil {
			s.domain = outcome.State
			s.conditions = append(s.conditions, Condition{
				Name:   ConditionExhaustion,
				Rounds: outcome.Exhaustion.Rounds,
			})
		}
		s.pool.Energy = remotePool.Energy
		s.pool.Effort = remotePool.Effort
	}
}

// End closes the session: queued buffs are cleared and the observer is
// detached so no further push is scheduled.
func (s *Session) End() {
	s.mu.Lock()
	s.buffs = ability.BuffSet{}
	s.observer = nil
	s.ended = true
	s.mu.Unlock()
}

// Ended reports whether the session was closed.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func notify(observer Observer) {
	if observer != nil {
		observer.Changed()
	}
}
