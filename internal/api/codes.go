package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type adjustRequest struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
}

func (s *Server) getByCode(w http.ResponseWriter, r *http.Request) {
	a, err := s.articles.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) adjustByCode(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	a, err := s.articles.AdjustByCode(r.Context(), chi.URLParam(r, "code"), req.Action, req.Quantity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) codeImage(w http.ResponseWriter, r *http.Request) {
	a, err := s.articles.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	d, err := s.images.OpenFallback(r.Context(), a)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.streamImage(w, d)
}
