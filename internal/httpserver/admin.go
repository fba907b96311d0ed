package httpserver

import (
	"math"
	"net/http"
	"time"

	"pechincha/internal/guard"
	"pechincha/internal/leads"
	"pechincha/internal/partners"
	"pechincha/internal/promo"
	"pechincha/internal/session"
	"pechincha/internal/wa"
)

func (s *Server) adminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/promotions", s.handleAdminPromotions)
	mux.HandleFunc("POST /api/admin/promotions", s.handleAdminSave)
	mux.HandleFunc("PUT /api/admin/promotions/{id}", s.handleAdminSave)
	mux.HandleFunc("POST /api/admin/promotions/{id}/status", s.handleAdminStatus)
	mux.HandleFunc("POST /api/admin/promotions/{id}/featured", s.handleAdminFeatured)
	mux.HandleFunc("POST /api/admin/promotions/{id}/flash", s.handleAdminFlash)
	mux.HandleFunc("DELETE /api/admin/promotions/{id}", s.handleAdminDelete)

	mux.HandleFunc("GET /api/admin/partners", s.handleListPartners)
	mux.HandleFunc("POST /api/admin/partners", s.handleCreatePartner)
	mux.HandleFunc("PATCH /api/admin/partners/{id}", s.handleUpdatePartner)
	mux.HandleFunc("DELETE /api/admin/partners/{id}", s.handleDeletePartner)

	mux.HandleFunc("GET /api/admin/leads", s.handleListLeads)
	mux.HandleFunc("POST /api/admin/leads/{id}/status", s.handleLeadStatus)
	mux.HandleFunc("POST /api/admin/leads/{id}/convert", s.handleConvertLead)
	mux.HandleFunc("GET /api/admin/leads/{id}/contact", s.handleLeadContact)
}

// admin returns the privileged actor for the request.
func (s *Server) admin(w http.ResponseWriter, r *http.Request) (promo.Actor, bool) {
	id, ok := s.caller(w, r)
	if !ok {
		return promo.Actor{}, false
	}
	if id.Role != session.RoleAdmin {
		writeMessage(w, http.StatusForbidden, "role not allowed")
		return promo.Actor{}, false
	}
	return promo.Actor{PartnerID: id.UserID, PartnerName: id.Name, Privileged: true}, true
}

func (s *Server) handleAdminPromotions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	list := s.deps.Promotions.ListAll(r.Context(), false)
	if raw := r.URL.Query().Get("status"); raw != "" {
		want := promo.NormalizeStatus(raw)
		filtered := []promo.Promotion{}
		for _, p := range list {
			if p.Status == want {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAdminSave(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.admin(w, r)
	if !ok {
		return
	}
	var patch promo.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	status := http.StatusOK
	id := r.PathValue("id")
	if id == "" {
		status = http.StatusCreated
	}
	p, err := s.deps.Promotions.Save(r.Context(), patch, id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, p)
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Status == "" {
		writeMessage(w, http.StatusBadRequest, "status obrigatório")
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Promotions.UpdateStatus(r.Context(), id, body.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(promo.NormalizeStatus(body.Status))})
}

// maxFlashHours caps a flash window at thirty days.
const maxFlashHours = 720

type flagRequest struct {
	On    bool    `json:"on"`
	Hours float64 `json:"hours,omitempty"`
}

func (s *Server) handleAdminFeatured(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var body flagRequest
	if err := decodeJSON(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	p, err := s.deps.Promotions.SetFeatured(r.Context(), r.PathValue("id"), body.On)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdminFlash(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var body flagRequest
	if err := decodeJSON(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if math.IsNaN(body.Hours) || math.IsInf(body.Hours, 0) || body.Hours < 0 || body.Hours > maxFlashHours {
		writeMessage(w, http.StatusBadRequest, "duração da oferta relâmpago inválida")
		return
	}
	window := time.Duration(body.Hours * float64(time.Hour))
	p, err := s.deps.Promotions.SetFlash(r.Context(), r.PathValue("id"), body.On, window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	if err := s.deps.Promotions.DeleteByAdmin(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPartners(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	list, err := s.deps.Partners.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePartner(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var in partners.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	created, err := s.deps.Partners.Create(r.Context(), guard.CredentialFromRequest(r).AccessToken, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdatePartner(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var body struct {
		Name   *string `json:"name"`
		Status *string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	upd := session.ProfileUpdate{Name: body.Name}
	if body.Status != nil {
		st := session.NormalizeAccountStatus(*body.Status)
		upd.Status = &st
	}
	prof, err := s.deps.Partners.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleDeletePartner(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	msg, err := s.deps.Partners.Delete(r.Context(), guard.CredentialFromRequest(r).AccessToken, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Leads.List(r.Context()))
}

func (s *Server) handleLeadStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	status, valid := leads.ParseStatus(body.Status)
	if !valid {
		writeMessage(w, http.StatusBadRequest, "status inválido")
		return
	}
	if err := s.deps.Leads.UpdateStatus(r.Context(), r.PathValue("id"), status); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id"), "status": string(status)})
}

func (s *Server) handleConvertLead(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	var in partners.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	created, err := s.deps.Partners.CreateFromLead(r.Context(), guard.CredentialFromRequest(r).AccessToken, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleLeadContact(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.admin(w, r); !ok {
		return
	}
	l, found := s.deps.Leads.Get(r.Context(), r.PathValue("id"))
	if !found {
		writeMessage(w, http.StatusNotFound, "não encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": wa.LeadContactLink(l, s.settings.AppName)})
}
