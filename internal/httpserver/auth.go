package httpserver

import (
	"net/http"

	"pechincha/internal/guard"
	"pechincha/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Portal   string `json:"portal"`
}

type sessionResponse struct {
	Resolution session.Resolution `json:"session"`
	ExpiresAt  int64              `json:"expiresAt,omitempty"`
	Redirect   string             `json:"redirect,omitempty"`
}

func (s *Server) authRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /ws/session", s.handleSessionSocket)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	var portal session.Role
	if req.Portal != "" {
		portal = session.NormalizeRole(req.Portal)
	}
	sess, res, err := s.deps.Sessions.Login(r.Context(), req.Email, req.Password, portal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, sessionResponse{
		Resolution: res,
		ExpiresAt:  sess.ExpiresAt.Unix(),
		Redirect:   landingFor(res),
	})
}

// landingFor is where a freshly signed-in user lands.
func landingFor(res session.Resolution) string {
	switch res.Identity.EffectiveRole() {
	case session.RoleAdmin:
		return "/admin/dashboard"
	case session.RolePartner:
		return "/parceiro/dashboard"
	default:
		return "/"
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cred := guard.CredentialFromRequest(r)
	if !cred.Empty() {
		if err := s.deps.Sessions.Logout(r.Context(), cred.AccessToken); err != nil {
			s.logger.Warn("logout failed", "error", err)
		}
	}
	s.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeMessage(w, http.StatusBadRequest, "corpo inválido")
			return
		}
	}
	token := body.RefreshToken
	if token == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "sessão expirada")
		return
	}
	sess, res, err := s.deps.Sessions.Refresh(r.Context(), token)
	if err != nil {
		s.clearSessionCookies(w)
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, sessionResponse{Resolution: res, ExpiresAt: sess.ExpiresAt.Unix()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sessions.Resolver().Resolve(r.Context(), guard.CredentialFromRequest(r))
	if err != nil {
		s.logger.Warn("session resolution failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"state": guard.Unresolved})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Resolution: res})
}
