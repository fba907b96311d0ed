package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"pechincha/internal/backend"
	"pechincha/internal/favorites"
	"pechincha/internal/leads"
	"pechincha/internal/partners"
	"pechincha/internal/promo"
	"pechincha/internal/session"
)

const retryMessage = "Não foi possível concluir a operação. Tente novamente."

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	return dec.Decode(dest)
}

// writeError maps a service error onto a status and user-facing message.
// Backend failures carry the backend's message when it has one.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.metrics.IncError("http")
	}
	writeMessage(w, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, promo.ErrInvalid),
		errors.Is(err, leads.ErrInvalid),
		errors.Is(err, partners.ErrInvalid),
		errors.Is(err, favorites.ErrNoDevice):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, promo.ErrNotFound),
		errors.Is(err, leads.ErrNotFound),
		errors.Is(err, session.ErrProfileNotFound):
		return http.StatusNotFound, "não encontrado"
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, "E-mail ou senha incorretos."
	case errors.Is(err, session.ErrBlocked):
		return http.StatusForbidden, "Conta bloqueada."
	case errors.Is(err, session.ErrWrongRole):
		return http.StatusForbidden, "Esta conta não tem acesso a esta área."
	case errors.Is(err, partners.ErrFunctionFailed):
		return http.StatusUnprocessableEntity, functionMessage(err)
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusForbidden, messageOr(backend.MessageOf(err), "Sem permissão para esta operação.")
	case errors.Is(err, backend.ErrConflict):
		return http.StatusConflict, messageOr(backend.MessageOf(err), retryMessage)
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, "não encontrado"
	case errors.Is(err, backend.ErrTransient), errors.Is(err, backend.ErrRejected):
		return http.StatusBadGateway, messageOr(backend.MessageOf(err), retryMessage)
	default:
		return http.StatusInternalServerError, retryMessage
	}
}

// functionMessage strips the wrapping so the function's own text reaches the user.
func functionMessage(err error) string {
	msg := err.Error()
	if _, after, ok := strings.Cut(msg, partners.ErrFunctionFailed.Error()+": "); ok {
		return after
	}
	return msg
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
