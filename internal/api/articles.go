package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockroom/internal/imagecache"
	"github.com/JakeFAU/stockroom/internal/inventory"
)

// Image source reported in X-Image-Source.
const (
	imageSourceCache    = "cache"
	imageSourceFallback = "fallback"
)

type stockRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	var (
		articles []inventory.Article
		err      error
	)
	if low, _ := strconv.ParseBool(r.URL.Query().Get("low")); low {
		articles, err = s.articles.LowStock(r.Context())
	} else {
		articles, err = s.articles.List(r.Context())
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.images.WarmListing(r.Context(), articles, -1)
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var in inventory.ArticleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	a, err := s.articles.Create(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/articles/%d", a.ID))
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadArticle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	var up inventory.ArticleUpdate
	if err := decodeJSON(w, r, &up); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	a, err := s.articles.Update(r.Context(), id, up)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	var req stockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	a, err := s.articles.Adjust(r.Context(), id, req.Delta)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	if err := s.articles.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) articleImage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadArticle(w, r)
	if !ok {
		return
	}
	d, err := s.images.OpenForDisplay(r.Context(), &a)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.streamImage(w, d)
}

func (s *Server) refreshImage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadArticle(w, r)
	if !ok {
		return
	}
	cached := s.images.Refresh(r.Context(), &a)
	writeJSON(w, http.StatusOK, map[string]any{
		"cached":     cached,
		"image_name": a.ImageName,
	})
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="articles.csv"`)
	if err := s.articles.ExportCSV(r.Context(), w); err != nil {
		s.logger.Error("csv export failed", zap.Error(err))
	}
}

func (s *Server) loadArticle(w http.ResponseWriter, r *http.Request) (inventory.Article, bool) {
	id, ok := articleID(w, r)
	if !ok {
		return inventory.Article{}, false
	}
	a, err := s.articles.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return inventory.Article{}, false
	}
	return a, true
}

func articleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return 0, false
	}
	return id, true
}

func (s *Server) streamImage(w http.ResponseWriter, d *imagecache.Display) {
	defer func() {
		if err := d.Body.Close(); err != nil {
			s.logger.Debug("close image body", zap.Error(err))
		}
	}()
	source := imageSourceCache
	if d.Fallback {
		source = imageSourceFallback
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("X-Image-Source", source)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil {
		s.logger.Debug("image stream interrupted", zap.String("name", d.Name), zap.Error(err))
	}
}
