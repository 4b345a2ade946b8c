package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
)

// APIHandler exposes the debate and quiz engines over JSON.
type APIHandler struct {
	debates *app.DebateService
	quizzes *app.QuizService
}

func NewAPIHandler(debates *app.DebateService, quizzes *app.QuizService) *APIHandler {
	return &APIHandler{debates: debates, quizzes: quizzes}
}

// Register mounts every route on the given mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/debates", h.createDebate)
	mux.HandleFunc("GET /api/debates", h.listDebates)
	mux.HandleFunc("GET /api/debates/{id}", h.getDebate)
	mux.HandleFunc("POST /api/debates/{id}/signups", h.signup)
	mux.HandleFunc("POST /api/debates/{id}/randomize", h.randomize)
	mux.HandleFunc("POST /api/debates/{id}/votes/jury", h.juryVote)
	mux.HandleFunc("POST /api/debates/{id}/votes/public", h.publicVote)
	mux.HandleFunc("POST /api/debates/{id}/live/start", h.startLive)
	mux.HandleFunc("POST /api/debates/{id}/live/stop", h.stopLive)
	mux.HandleFunc("GET /api/debates/{id}/live", h.liveState)
	mux.HandleFunc("GET /api/debates/{id}/live/scores", h.liveScores)
	mux.HandleFunc("PUT /api/debates/{id}/flow", h.updateFlow)
	mux.HandleFunc("POST /api/debates/{id}/qr/regenerate", h.regenStepCodes)
	mux.HandleFunc("POST /api/debates/{id}/registration-qr", h.regenRegistration)

	mux.HandleFunc("POST /api/quiz-sessions", h.createSession)
	mux.HandleFunc("GET /api/quiz-sessions", h.listSessions)
	mux.HandleFunc("POST /api/quiz-sessions/{id}/join", h.joinSession)
	mux.HandleFunc("POST /api/quiz-sessions/{id}/control", h.controlSession)
	mux.HandleFunc("GET /api/quiz-sessions/{id}/state", h.sessionState)
	mux.HandleFunc("POST /api/quiz-sessions/{id}/submit", h.submitAnswer)
	mux.HandleFunc("POST /api/quiz-sessions/{id}/qr/regenerate", h.regenJoinCode)
}

func (h *APIHandler) createDebate(w http.ResponseWriter, r *http.Request) {
	var params app.CreateDebateParams
	if !decodeJSON(w, r, &params) {
		return
	}
	d, err := h.debates.Create(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *APIHandler) listDebates(w http.ResponseWriter, r *http.Request) {
	list, err := h.debates.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *APIHandler) getDebate(w http.ResponseWriter, r *http.Request) {
	d, err := h.debates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type signupRequest struct {
	Email  string              `json:"email"`
	Choice domain.SignupChoice `json:"choice"`
}

func (h *APIHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.debates.Register(r.Context(), r.PathValue("id"), req.Email, req.Choice); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (h *APIHandler) randomize(w http.ResponseWriter, r *http.Request) {
	assignment, err := h.debates.Randomize(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (h *APIHandler) juryVote(w http.ResponseWriter, r *http.Request) {
	var in app.JuryBallotInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.debates.SubmitJuryBallot(r.Context(), r.PathValue("id"), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (h *APIHandler) publicVote(w http.ResponseWriter, r *http.Request) {
	var in app.PublicVoteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.debates.SubmitPublicVote(r.Context(), r.PathValue("id"), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (h *APIHandler) startLive(w http.ResponseWriter, r *http.Request) {
	state, err := h.debates.StartLive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) stopLive(w http.ResponseWriter, r *http.Request) {
	state, err := h.debates.StopLive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) liveState(w http.ResponseWriter, r *http.Request) {
	state, err := h.debates.Live(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) liveScores(w http.ResponseWriter, r *http.Request) {
	snap, err := h.debates.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type flowRequest struct {
	Flow []domain.Step `json:"flow"`
}

func (h *APIHandler) updateFlow(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	steps, err := h.debates.UpdateFlow(r.Context(), r.PathValue("id"), req.Flow)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flowRequest{Flow: steps})
}

func (h *APIHandler) regenStepCodes(w http.ResponseWriter, r *http.Request) {
	steps, err := h.debates.RegenerateStepCodes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flowRequest{Flow: steps})
}

func (h *APIHandler) regenRegistration(w http.ResponseWriter, r *http.Request) {
	code, err := h.debates.RegenerateRegistrationCode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

type createSessionRequest struct {
	QuizID    string `json:"quiz_id"`
	MeetingID string `json:"meeting_id"`
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.quizzes.CreateSession(r.Context(), req.QuizID, req.MeetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *APIHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.quizzes.Sessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type joinResponse struct {
	PlayerID string `json:"player_id"`
}

func (h *APIHandler) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	playerID, err := h.quizzes.Join(r.Context(), r.PathValue("id"), req.Nickname)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{PlayerID: playerID})
}

type controlRequest struct {
	Action string `json:"action"`
}

func (h *APIHandler) controlSession(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.quizzes.Control(r.Context(), r.PathValue("id"), req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) sessionState(w http.ResponseWriter, r *http.Request) {
	state, err := h.quizzes.State(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type submitRequest struct {
	PlayerID      string                 `json:"player_id"`
	Answer        domain.SubmittedAnswer `json:"answer"`
	PenalizeWrong bool                   `json:"penalize_wrong"`
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.quizzes.Submit(r.Context(), r.PathValue("id"), req.PlayerID, req.Answer, req.PenalizeWrong)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) regenJoinCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.quizzes.RegenerateJoinCode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

type statusBody struct {
	Status string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), errorBody{Error: err.Error()})
}

func statusForError(err error) int {
	if errors.Is(err, domain.ErrVersionConflict) {
		return http.StatusConflict
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation, domain.KindInvalidState, domain.KindPlanning:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
