package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/veilbound/companion/internal/services/combat/domain/ability"
	"github.com/veilbound/companion/internal/services/combat/domain/expansion"
	"github.com/veilbound/companion/internal/services/combat/domain/pool"
	"github.com/veilbound/companion/internal/services/combat/domain/sheet"
	"github.com/veilbound/companion/internal/services/combat/session"
)

type statsPayload struct {
	Health int `json:"pv"`
	Energy int `json:"ce"`
	Effort int `json:"pe"`
}

type attributesPayload struct {
	Agility   int `json:"agility"`
	Intellect int `json:"intellect"`
	Vigor     int `json:"vigor"`
	Presence  int `json:"presence"`
	Strength  int `json:"strength"`
}

type createSessionRequest struct {
	CharacterID   string            `json:"characterId"`
	CharacterName string            `json:"characterName"`
	ImageURL      string            `json:"imageUrl"`
	Level         int               `json:"level"`
	Class         string            `json:"class"`
	Origin        string            `json:"origin"`
	Attributes    attributesPayload `json:"attributes"`
	Current       statsPayload      `json:"current"`
	DebounceMs    int               `json:"debounceMs"`
}

type domainPayload struct {
	Active bool   `json:"active"`
	Kind   string `json:"kind,omitempty"`
	Round  int    `json:"round,omitempty"`
}

type buffPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	EffortCost     int    `json:"effortCost,omitempty"`
	EnergyCost     int    `json:"energyCost,omitempty"`
	TriggerSkill   string `json:"triggerSkill,omitempty"`
	CombatModifier bool   `json:"combatModifier,omitempty"`
}

type sessionResponse struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	CharacterID string              `json:"characterId"`
	Current     statsPayload        `json:"current"`
	Maxima      statsPayload        `json:"maxima"`
	Domain      domainPayload       `json:"domain"`
	Buffs       []buffPayload       `json:"buffs"`
	Conditions  []session.Condition `json:"conditions"`
}

func sessionView(s *session.Session) sessionResponse {
	p := s.Pool()
	m := s.Maxima()
	d := s.Domain()

	buffs := make([]buffPayload, 0)
	for _, ref := range s.QueuedBuffs() {
		buffs = append(buffs, buffPayload{
			ID:             ref.ID,
			Name:           ref.Name,
			EffortCost:     ref.Cost.Effort,
			EnergyCost:     ref.Cost.Energy,
			TriggerSkill:   ref.TriggerSkill,
			CombatModifier: ref.CombatModifier,
		})
	}

	conditions := s.Conditions()
	if conditions == nil {
		conditions = make([]session.Condition, 0)
	}

	return sessionResponse{
		ID:          s.ID,
		UserID:      s.UserID,
		CharacterID: s.CharacterID,
		Current:     statsPayload{Health: p.Health, Energy: p.Energy, Effort: p.Effort},
		Maxima:      statsPayload{Health: m.Health, Energy: m.Energy, Effort: m.Effort},
		Domain:      domainPayload{Active: d.Active, Kind: string(d.Kind), Round: d.Round},
		Buffs:       buffs,
		Conditions:  conditions,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	in := session.StartInput{
		UserID:        identity(r),
		CharacterID:   req.CharacterID,
		CharacterName: req.CharacterName,
		ImageURL:      req.ImageURL,
		Profile: sheet.Profile{
			Level: req.Level,
			Attributes: sheet.Attributes{
				Agility:   req.Attributes.Agility,
				Intellect: req.Attributes.Intellect,
				Vigor:     req.Attributes.Vigor,
				Presence:  req.Attributes.Presence,
				Strength:  req.Attributes.Strength,
			},
			Class:  req.Class,
			Origin: req.Origin,
		},
		Current: pool.Pool{
			Health: req.Current.Health,
			Energy: req.Current.Energy,
			Effort: req.Current.Effort,
		},
	}

	live, err := s.service.CreateSession(r.Context(), in, time.Duration(req.DebounceMs)*time.Millisecond)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(live))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(live))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.EndSession(mux.Vars(r)["sessionID"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type consumeRequest struct {
	Field  string `json:"field"`
	Amount int    `json:"amount"`
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req consumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if _, err := live.Consume(pool.Field(req.Field), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(live))
}

type setCurrentRequest struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req setCurrentRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if _, err := live.SetCurrent(pool.Field(req.Field), req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(live))
}

type abilityRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	EffortCost     int    `json:"effortCost"`
	EnergyCost     int    `json:"energyCost"`
	TriggerSkill   string `json:"triggerSkill"`
	CombatModifier bool   `json:"combatModifier"`
}

// ref builds the ability reference, falling back to the legacy description
// parser when no structured fields were sent.
func (a abilityRequest) ref() ability.Ref {
	structured := ability.Ref{
		ID:             a.ID,
		Name:           a.Name,
		Cost:           ability.Cost{Effort: a.EffortCost, Energy: a.EnergyCost},
		TriggerSkill:   a.TriggerSkill,
		CombatModifier: a.CombatModifier,
	}
	if a.Description != "" && structured.Cost.IsZero() && structured.TriggerSkill == "" && !structured.CombatModifier {
		return ability.RefFromDescription(a.ID, a.Name, a.Description)
	}
	return structured
}

type toggleResponse struct {
	Queued  bool            `json:"queued"`
	Charged bool            `json:"charged"`
	Session sessionResponse `json:"session"`
}

func (s *Server) handleToggleBuff(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req abilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	outcome, err := live.ToggleBuff(req.ref())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{
		Queued:  outcome.Queued,
		Charged: outcome.Charged,
		Session: sessionView(live),
	})
}

func (s *Server) handleInvokeAbility(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req abilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if _, err := live.InvokeAbility(req.ref()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(live))
}

type skillRollRequest struct {
	Skill string `json:"skill"`
}

type skillRollResponse struct {
	Fired   []buffPayload   `json:"fired"`
	Skipped []buffPayload   `json:"skipped"`
	Session sessionResponse `json:"session"`
}

func (s *Server) handleSkillRoll(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req skillRollRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	outcome := live.ResolveSkillRoll(req.Skill)
	writeJSON(w, http.StatusOK, skillRollResponse{
		Fired:   buffViews(outcome.Fired),
		Skipped: buffViews(outcome.Skipped),
		Session: sessionView(live),
	})
}

func buffViews(refs []ability.Ref) []buffPayload {
	out := make([]buffPayload, 0, len(refs))
	for _, ref := range refs {
		out = append(out, buffPayload{
			ID:             ref.ID,
			Name:           ref.Name,
			EffortCost:     ref.Cost.Effort,
			EnergyCost:     ref.Cost.Energy,
			TriggerSkill:   ref.TriggerSkill,
			CombatModifier: ref.CombatModifier,
		})
	}
	return out
}

type activateDomainRequest struct {
	Kind          string `json:"kind"`
	Cost          int    `json:"cost"`
	RequiredLevel int    `json:"requiredLevel"`
}

func (s *Server) handleActivateDomain(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req activateDomainRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if _, err := live.ActivateDomain(expansion.Kind(req.Kind), req.Cost, req.RequiredLevel); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(live))
}

type advanceDomainRequest struct {
	Force bool `json:"force"`
}

type advanceDomainResponse struct {
	Advanced       bool            `json:"advanced"`
	MaintenanceDue bool            `json:"maintenanceDue"`
	Cost           int             `json:"cost"`
	Closed         bool            `json:"closed"`
	Session        sessionResponse `json:"session"`
}

func (s *Server) handleAdvanceDomain(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req advanceDomainRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	outcome, err := live.AdvanceDomain(req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceDomainResponse{
		Advanced:       outcome.Advanced,
		MaintenanceDue: outcome.MaintenanceDue,
		Cost:           outcome.Cost,
		Closed:         outcome.Closed,
		Session:        sessionView(live),
	})
}

func (s *Server) handleCloseDomain(w http.ResponseWriter, r *http.Request) {
	live, err := s.service.GetSession(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := live.CloseDomain(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(live))
}
