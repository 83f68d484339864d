// Package httpapi exposes the combat service over JSON HTTP and a WebSocket
// campaign feed. Identity is taken from the X-User-ID header; authenticating
// it is the deployment's concern.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/veilbound/companion/internal/platform/errors"
	"github.com/veilbound/companion/internal/services/combat/domain/roster"
	"github.com/veilbound/companion/internal/services/combat/feed"
	"github.com/veilbound/companion/internal/services/combat/mirror"
	"github.com/veilbound/companion/internal/services/combat/round"
	"github.com/veilbound/companion/internal/services/combat/session"
)

// identityHeader carries the caller's user id.
const identityHeader = "X-User-ID"

// Service is the application surface the transport exposes.
type Service interface {
	CreateSession(ctx context.Context, in session.StartInput, debounce time.Duration) (*session.Session, error)
	GetSession(sessionID string) (*session.Session, error)
	EndSession(sessionID string) error

	StartCombat(ctx context.Context, campaignID, startedBy string, participants []roster.Participant) (roster.Roster, error)
	StopCombat(ctx context.Context, campaignID, userID string) (roster.Roster, error)
	SetParticipants(ctx context.Context, campaignID, userID string, participants []roster.Participant) (roster.Roster, error)
	CombatState(ctx context.Context, campaignID string) (roster.Roster, []mirror.Document, error)
	AdvanceRound(ctx context.Context, campaignID, userID string) (round.Outcome, error)

	Feed() *feed.Hub
}

// Server is the HTTP transport for the combat service.
type Server struct {
	service Service
	router  *mux.Router
}

// New builds the server and its route table.
func New(service Service) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}", s.handleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sessionID}", s.handleEndSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{sessionID}/consume", s.handleConsume).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/set", s.handleSetCurrent).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/abilities/toggle", s.handleToggleBuff).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/abilities/invoke", s.handleInvokeAbility).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/skill-rolls", s.handleSkillRoll).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/domain/activate", s.handleActivateDomain).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/domain/advance", s.handleAdvanceDomain).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionID}/domain/close", s.handleCloseDomain).Methods(http.MethodPost)

	v1.HandleFunc("/campaigns/{campaignID}/combat:start", s.handleStartCombat).Methods(http.MethodPost)
	v1.HandleFunc("/campaigns/{campaignID}/combat:stop", s.handleStopCombat).Methods(http.MethodPost)
	v1.HandleFunc("/campaigns/{campaignID}/combat:advanceRound", s.handleAdvanceRound).Methods(http.MethodPost)
	v1.HandleFunc("/campaigns/{campaignID}/combat/participants", s.handleSetParticipants).Methods(http.MethodPut)
	v1.HandleFunc("/campaigns/{campaignID}/combat/state", s.handleCombatState).Methods(http.MethodGet)
	v1.HandleFunc("/campaigns/{campaignID}/combat/feed", s.handleFeed).Methods(http.MethodGet)
}

func identity(r *http.Request) string {
	return r.Header.Get(identityHeader)
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code.HTTPStatus(), errorResponse{
			Code:    string(appErr.Code),
			Message: appErr.Message,
		})
		return
	}
	log.Printf("internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    string(apperrors.CodeUnknown),
		Message: "internal error",
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: message})
}
