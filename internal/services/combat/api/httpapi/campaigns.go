package httpapi

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/mirror"
)

type participantPayload struct {
	UserID        string `json:"userId"`
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName,omitempty"`
}

type participantsRequest struct {
	Participants []participantPayload `json:"participants"`
}

func (r participantsRequest) domain() []roster.Participant {
	out := make([]roster.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, roster.Participant{
			UserID:        p.UserID,
			CharacterID:   p.CharacterID,
			CharacterName: p.CharacterName,
		})
	}
	return out
}

type rosterResponse struct {
	CampaignID   string               `json:"campaignId"`
	Active       bool                 `json:"active"`
	Participants []participantPayload `json:"participants"`
	StartedAt    int64                `json:"startedAt,omitempty"`
	StartedBy    string               `json:"startedBy,omitempty"`
}

func rosterView(r roster.Roster) rosterResponse {
	participants := make([]participantPayload, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, participantPayload{
			UserID:        p.UserID,
			CharacterID:   p.CharacterID,
			CharacterName: p.CharacterName,
		})
	}
	out := rosterResponse{
		CampaignID:   r.CampaignID,
		Active:       r.Active,
		Participants: participants,
		StartedBy:    r.StartedBy,
	}
	if !r.StartedAt.IsZero() {
		out.StartedAt = r.StartedAt.UTC().UnixMilli()
	}
	return out
}

func (s *Server) handleStartCombat(w http.ResponseWriter, r *http.Request) {
	var req participantsRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	started, err := s.service.StartCombat(r.Context(), mux.Vars(r)["campaignID"], identity(r), req.domain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterView(started))
}

func (s *Server) handleStopCombat(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.service.StopCombat(r.Context(), mux.Vars(r)["campaignID"], identity(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterView(stopped))
}

func (s *Server) handleSetParticipants(w http.ResponseWriter, r *http.Request) {
	var req participantsRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	updated, err := s.service.SetParticipants(r.Context(), mux.Vars(r)["campaignID"], identity(r), req.domain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterView(updated))
}

type combatStateResponse struct {
	Roster    rosterResponse    `json:"roster"`
	Documents []mirror.Document `json:"documents"`
}

func (s *Server) handleCombatState(w http.ResponseWriter, r *http.Request) {
	current, docs, err := s.service.CombatState(r.Context(), mux.Vars(r)["campaignID"])
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = make([]mirror.Document, 0)
	}
	writeJSON(w, http.StatusOK, combatStateResponse{
		Roster:    rosterView(current),
		Documents: docs,
	})
}

type advanceRoundResponse struct {
	Documents  int `json:"documents"`
	Conditions int `json:"conditions"`
}

func (s *Server) handleAdvanceRound(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.service.AdvanceRound(r.Context(), mux.Vars(r)["campaignID"], identity(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceRoundResponse{
		Documents:  len(outcome.Documents),
		Conditions: len(outcome.Conditions),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleFeed upgrades the connection and streams campaign feed events as
// JSON text frames until either side closes.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignID"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade feed connection: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sub, err := s.service.Feed().Subscribe(ctx, campaignID)
	if err != nil {
		return
	}
	defer s.service.Feed().Unsubscribe(ctx, sub)

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
