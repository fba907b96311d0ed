package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"pechincha/internal/guard"
	"pechincha/internal/promo"
	"pechincha/internal/session"
	"pechincha/internal/wa"
)

const maxUploadBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func (s *Server) partnerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/partner/promotions", s.handlePartnerPromotions)
	mux.HandleFunc("POST /api/partner/promotions", s.handlePartnerCreate)
	mux.HandleFunc("PUT /api/partner/promotions/{id}", s.handlePartnerUpdate)
	mux.HandleFunc("DELETE /api/partner/promotions/{id}", s.handlePartnerDelete)
	mux.HandleFunc("GET /api/partner/promotions/{id}/boost", s.handleBoostLink)
	mux.HandleFunc("POST /api/partner/uploads", s.handleUpload)
}

// caller returns the identity the guard resolved for the request. Requests
// that went through unresolved cannot be attributed to anyone and get 503.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	var res *session.Resolution
	if _, guarded, ok := guard.FromContext(r.Context()); ok {
		res = guarded
	} else {
		resolved, err := s.deps.Sessions.Resolver().Resolve(r.Context(), guard.CredentialFromRequest(r))
		if err == nil {
			res = &resolved
		}
	}
	if res == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Não foi possível confirmar sua sessão. Tente novamente.")
		return session.Identity{}, false
	}
	if !res.Authenticated {
		writeMessage(w, http.StatusUnauthorized, "login required")
		return session.Identity{}, false
	}
	return res.Identity, true
}

func partnerActor(id session.Identity) promo.Actor {
	return promo.Actor{PartnerID: id.UserID, PartnerName: id.Name}
}

func (s *Server) handlePartnerPromotions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Promotions.ListByPartner(r.Context(), id.UserID))
}

func (s *Server) handlePartnerCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	var patch promo.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	p, err := s.deps.Promotions.Save(r.Context(), patch, "", partnerActor(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePartnerUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	promoID := r.PathValue("id")
	if _, found := s.deps.Promotions.GetByID(r.Context(), promoID); !found {
		writeMessage(w, http.StatusNotFound, "não encontrado")
		return
	}
	var patch promo.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	p, err := s.deps.Promotions.Save(r.Context(), patch, promoID, partnerActor(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePartnerDelete answers 204 whether or not anything was removed so
// callers cannot probe for promotions they do not own.
func (s *Server) handlePartnerDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	deleted, err := s.deps.Promotions.DeleteByPartner(r.Context(), r.PathValue("id"), id.UserID, id.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("partner delete", "promotion_id", r.PathValue("id"), "partner_id", id.UserID, "deleted", deleted)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBoostLink(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	kind, valid := wa.ParseBoostKind(r.URL.Query().Get("kind"))
	if !valid {
		writeMessage(w, http.StatusBadRequest, "kind deve ser featured ou flash")
		return
	}
	p, found := s.deps.Promotions.GetByID(r.Context(), r.PathValue("id"))
	if !found || !strings.EqualFold(strings.TrimSpace(p.PartnerID), strings.TrimSpace(id.UserID)) {
		writeMessage(w, http.StatusNotFound, "não encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url": wa.BoostRequestLink(s.settings.SupportNumber, p, kind, s.settings.AppName),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caller(w, r)
	if !ok {
		return
	}
	if s.deps.Storage == nil {
		writeMessage(w, http.StatusServiceUnavailable, "upload indisponível")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1024)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "envie a imagem no campo image")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "falha ao ler a imagem")
		return
	}
	if len(data) > maxUploadBytes {
		writeMessage(w, http.StatusRequestEntityTooLarge, "imagem maior que 5MB")
		return
	}
	contentType := http.DetectContentType(data)
	ext, allowed := imageExtensions[contentType]
	if !allowed {
		writeMessage(w, http.StatusUnsupportedMediaType, "formato de imagem não suportado")
		return
	}

	owner := strings.ToLower(strings.TrimSpace(id.UserID))
	if owner == "" {
		owner = "shared"
	}
	objectPath := path.Join(owner, fmt.Sprintf("%s%s", uuid.NewString(), ext))
	publicURL, err := s.deps.Storage.Upload(r.Context(), objectPath, contentType, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("image uploaded", "partner_id", id.UserID, "object", objectPath, "original", header.Filename, "bytes", len(data))
	writeJSON(w, http.StatusCreated, map[string]string{"url": publicURL, "path": objectPath})
}
