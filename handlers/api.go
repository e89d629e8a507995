package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"calendar/auth"
	"calendar/events"
	"calendar/models"

	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var farFuture = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

type errorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
}

type saveResponse struct {
	Success bool           `json:"success"`
	ID      models.EventID `json:"id"`
}

func sendJSONResponse(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// isJSON reports whether the request declares a JSON body. Plain HTML forms
// cannot send one, which keeps the JSON routes out of reach of cross-site
// form posts.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func sendError(w http.ResponseWriter, status int, msg string) {
	sendJSONResponse(w, status, errorResponse{Error: msg})
}

// sendFailure is sendError for routes that also report "success": false.
func sendFailure(w http.ResponseWriter, status int, msg string) {
	f := false
	sendJSONResponse(w, status, errorResponse{Success: &f, Error: msg})
}

// apiUser resolves the caller from a bearer token, falling back to the
// session cookie.
func (s *Server) apiUser(r *http.Request) (string, error) {
	if token, ok := auth.BearerToken(r); ok {
		return s.tokens.Verify(token)
	}
	return s.sessions.Username(r)
}

func (s *Server) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	username, err := s.apiUser(r)
	if err != nil {
		sendError(w, http.StatusUnauthorized, "User not logged in")
		return
	}

	q := r.URL.Query()
	if !q.Has("start") && !q.Has("end") {
		sendJSONResponse(w, http.StatusOK, s.events.List(r.Context(), username))
		return
	}

	from, to := time.Time{}, farFuture
	var ok bool
	if v := q.Get("start"); v != "" {
		if from, ok = events.ParseTime(v); !ok {
			sendError(w, http.StatusBadRequest, "Invalid time range")
			return
		}
	}
	if v := q.Get("end"); v != "" {
		if to, ok = events.ParseTime(v); !ok {
			sendError(w, http.StatusBadRequest, "Invalid time range")
			return
		}
	}

	list, err := s.events.ListRange(r.Context(), username, from, to)
	if errors.Is(err, events.ErrInvalidRange) {
		sendError(w, http.StatusBadRequest, "Invalid time range")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("range query failed")
		sendError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}
	sendJSONResponse(w, http.StatusOK, list)
}

func (s *Server) SaveEventHandler(w http.ResponseWriter, r *http.Request) {
	username, err := s.apiUser(r)
	if err != nil {
		sendError(w, http.StatusUnauthorized, "User not logged in")
		return
	}
	if !isJSON(r) {
		sendFailure(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		sendFailure(w, http.StatusBadRequest, "No data provided")
		return
	}

	id, err := s.events.Upsert(r.Context(), username, body)
	switch {
	case err == nil:
		sendJSONResponse(w, http.StatusOK, saveResponse{Success: true, ID: id})
	case errors.Is(err, events.ErrInvalidPayload):
		sendFailure(w, http.StatusBadRequest, "No data provided")
	case errors.Is(err, events.ErrEventNotFound):
		sendFailure(w, http.StatusNotFound, "Event not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("username", username).Msg("failed to save event")
		sendFailure(w, http.StatusInternalServerError, "Failed to save event")
	}
}

func (s *Server) DeleteEventHandler(w http.ResponseWriter, r *http.Request) {
	username, err := s.apiUser(r)
	if err != nil {
		sendError(w, http.StatusUnauthorized, "User not logged in")
		return
	}
	if !isJSON(r) {
		sendError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	// anything that is not an object carrying "id" counts as no id
	var input map[string]json.RawMessage
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input)

	err = s.events.Delete(r.Context(), username, input["id"])
	switch {
	case err == nil:
		sendJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, events.ErrMissingID):
		sendError(w, http.StatusBadRequest, "Event ID not provided")
	case errors.Is(err, events.ErrInvalidID):
		sendError(w, http.StatusBadRequest, "Invalid event ID")
	case errors.Is(err, events.ErrEventNotFound):
		sendError(w, http.StatusNotFound, "Event not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("username", username).Msg("failed to delete event")
		sendError(w, http.StatusInternalServerError, "Failed to delete event")
	}
}

// TokenHandler trades a username and password for a bearer token.
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !s.loginLimiter.Allow(ip) {
		sendError(w, http.StatusTooManyRequests, "Too many attempts")
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	_, err := s.auth.Login(r.Context(), input.Username, input.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.loginLimiter.RecordFailure(ip)
		sendError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("token login failed")
		sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.loginLimiter.Reset(ip)

	token, err := s.tokens.Issue(input.Username)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to sign token")
		sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(s.cfg.TokenTTL().Seconds()),
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
