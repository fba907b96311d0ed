package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"pechincha/internal/guard"
	"pechincha/internal/leads"
	"pechincha/internal/promo"
	"pechincha/internal/wa"
)

func (s *Server) publicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/storefront", s.handleStorefront)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/promotions", s.handlePublicPromotions)
	mux.HandleFunc("GET /api/promotions/{id}", s.handlePublicPromotion)
	mux.HandleFunc("GET /api/promotions/{id}/contact", s.handlePromotionContact)
	mux.HandleFunc("GET /api/favorites", s.handleFavorites)
	mux.HandleFunc("POST /api/favorites/{id}/toggle", s.handleToggleFavorite)
	mux.HandleFunc("POST /api/leads", s.handleCreateLead)
	mux.HandleFunc("GET /api/support", s.handleSupport)
	mux.HandleFunc("GET /api/guard", s.handleGuardCheck)
}

func (s *Server) handleStorefront(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := promo.CatalogFilter{
		Category: q.Get("category"),
		Term:     q.Get("q"),
	}
	if raw := strings.TrimSpace(q.Get("maxPrice")); raw != "" {
		price, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil || price < 0 {
			writeMessage(w, http.StatusBadRequest, "maxPrice inválido")
			return
		}
		filter.MaxPrice = price
	}
	writeJSON(w, http.StatusOK, s.deps.Promotions.BuildStorefront(r.Context(), filter))
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, promo.Categories)
}

func (s *Server) handlePublicPromotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Promotions.ListAll(r.Context(), true))
}

// approvedPromotion loads a promotion visible to the public.
func (s *Server) approvedPromotion(r *http.Request) (promo.Promotion, bool) {
	p, ok := s.deps.Promotions.GetByID(r.Context(), r.PathValue("id"))
	if !ok || p.Status != promo.StatusApproved {
		return promo.Promotion{}, false
	}
	return p, true
}

func (s *Server) handlePublicPromotion(w http.ResponseWriter, r *http.Request) {
	p, ok := s.approvedPromotion(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "não encontrado")
		return
	}
	device := s.deviceID(w, r, false)
	writeJSON(w, http.StatusOK, map[string]any{
		"promotion": p,
		"favorite":  device != "" && s.deps.Favorites.IsFavorite(r.Context(), device, p.ID),
		"contact":   wa.PromotionContactLink(p, s.settings.AppName),
	})
}

func (s *Server) handlePromotionContact(w http.ResponseWriter, r *http.Request) {
	p, ok := s.approvedPromotion(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "não encontrado")
		return
	}
	link := wa.PromotionContactLink(p, s.settings.AppName)
	if link == "" {
		writeMessage(w, http.StatusNotFound, "promoção sem contato")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link, "type": string(p.DestinationType)})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	device := s.deviceID(w, r, false)
	ids := []string{}
	promotions := []promo.Promotion{}
	if device != "" {
		ids = s.deps.Favorites.List(r.Context(), device)
		wanted := make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
		for _, p := range s.deps.Promotions.ListAll(r.Context(), true) {
			if wanted[p.ID] {
				promotions = append(promotions, p)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "promotions": promotions})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	device := s.deviceID(w, r, true)
	on, err := s.deps.Favorites.Toggle(r.Context(), device, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": on})
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var in leads.Input
	if err := decodeJSON(r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	l, err := s.deps.Leads.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleSupport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": wa.SupportLink(s.settings.SupportNumber, s.settings.AppName)})
}

// handleGuardCheck lets a client ask what the guard would do for a path
// without navigating there.
func (s *Server) handleGuardCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Guard == nil {
		writeMessage(w, http.StatusServiceUnavailable, "guard disabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	d, _ := s.deps.Guard.Check(r.Context(), path, guard.CredentialFromRequest(r))
	writeJSON(w, http.StatusOK, d)
}
