package handlers

import (
	"errors"
	"net/http"

	"calendar/auth"

	"github.com/dchest/captcha"
	"github.com/rs/zerolog"
)

func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// page returns the template data every page understands.
func page(username, formUsername, errMsg string) map[string]any {
	return map[string]any{
		"Username":     username,
		"FormUsername": formUsername,
		"Error":        errMsg,
		"CaptchaID":    "",
	}
}

func (s *Server) renderSignup(w http.ResponseWriter, r *http.Request, status int, formUsername, errKey string) {
	data := page("", formUsername, s.translate(r, errKey))
	if s.cfg.Captcha {
		data["CaptchaID"] = captcha.New()
	}
	s.renderer.Render(w, r, status, "signup.html", data)
}

func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderSignup(w, r, http.StatusOK, "", "")
		return
	case http.MethodPost:
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	logger := zerolog.Ctx(r.Context())
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	confirm := r.PostFormValue("confirm_password")

	ip := getClientIP(r)
	if !s.signupLimiter.Allow(ip) {
		s.renderSignup(w, r, http.StatusTooManyRequests, username, "TooManyAttempts")
		return
	}
	// every signup attempt counts, successful or not
	s.signupLimiter.RecordFailure(ip)

	if s.cfg.Captcha && !captcha.VerifyString(r.PostFormValue("captcha_id"), r.PostFormValue("captcha_solution")) {
		s.renderSignup(w, r, http.StatusBadRequest, username, "CaptchaInvalid")
		return
	}

	err := s.auth.Register(r.Context(), username, password, confirm)
	switch {
	case err == nil:
		logger.Info().Str("username", username).Msg("user signed up")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, auth.ErrPasswordMismatch):
		s.renderSignup(w, r, http.StatusBadRequest, username, "PasswordMismatch")
	case errors.Is(err, auth.ErrInvalidUsername):
		s.renderSignup(w, r, http.StatusBadRequest, username, "InvalidUsername")
	case errors.Is(err, auth.ErrInvalidPassword):
		s.renderSignup(w, r, http.StatusBadRequest, username, "InvalidPassword")
	case errors.Is(err, auth.ErrPasswordTooLong):
		s.renderSignup(w, r, http.StatusBadRequest, username, "PasswordTooLong")
	case errors.Is(err, auth.ErrUsernameTaken):
		s.renderSignup(w, r, http.StatusConflict, username, "UsernameTaken")
	default:
		logger.Error().Err(err).Str("username", username).Msg("signup failed")
		s.renderSignup(w, r, http.StatusInternalServerError, username, "InternalError")
	}
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderer.Render(w, r, http.StatusOK, "login.html", page("", "", ""))
		return
	case http.MethodPost:
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	logger := zerolog.Ctx(r.Context())
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	fail := func(status int, key string) {
		s.renderer.Render(w, r, status, "login.html", page("", username, s.translate(r, key)))
	}

	ip := getClientIP(r)
	if !s.loginLimiter.Allow(ip) {
		fail(http.StatusTooManyRequests, "TooManyAttempts")
		return
	}

	_, err := s.auth.Login(r.Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.loginLimiter.RecordFailure(ip)
		fail(http.StatusUnauthorized, "InvalidCredentials")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("login failed")
		fail(http.StatusInternalServerError, "InternalError")
		return
	}

	s.loginLimiter.Reset(ip)
	if err := s.sessions.SetSession(w, r, username); err != nil {
		logger.Error().Err(err).Msg("failed to save session")
		fail(http.StatusInternalServerError, "InternalError")
		return
	}
	http.Redirect(w, r, "/calendar", http.StatusSeeOther)
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.ClearSession(w, r); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to clear session")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) CalendarHandler(w http.ResponseWriter, r *http.Request) {
	username, err := s.sessions.Username(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	zerolog.Ctx(r.Context()).Debug().Str("username", username).Msg("displaying calendar")
	s.renderer.Render(w, r, http.StatusOK, "calendar.html", page(username, "", ""))
}

func (s *Server) translate(r *http.Request, key string) string {
	if key == "" {
		return ""
	}
	return s.catalog.T(s.catalog.DetectLanguage(r), key)
}
