package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/product-sitemapper/internal/classifier"
)

type productResponse struct {
	URL      string `json:"url"`
	LastSeen string `json:"last_seen"`
	Lastmod  string `json:"lastmod"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.progress())
}

func (s *Server) handleProductLookup(w http.ResponseWriter, r *http.Request) {
	urlParam := r.URL.Query().Get("url")
	if urlParam == "" {
		s.respondWithError(w, http.StatusBadRequest, "URL query parameter is required")
		return
	}

	record, ok := s.products.Get(classifier.Canonicalize(urlParam))
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "product not in cache")
		return
	}
	s.respondWithJSON(w, http.StatusOK, productResponse{
		URL:      record.URL,
		LastSeen: record.LastSeen.String(),
		Lastmod:  record.Lastmod.String(),
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"sitemapper": "healthy"}
	isHealthy := true
	for name, store := range s.stores {
		if err := store.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			isHealthy = false
			s.logger.Error("health check failed", zap.String("store", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !isHealthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
