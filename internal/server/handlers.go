package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if ms, ok := s.deps.Classifier.(modelStatus); ok {
		response.Classifier = "not_loaded"
		if ms.Ready() {
			response.Classifier = "ready"
			response.Model = ms.ModelName()
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// diseasesHandler lists the knowledge base.
func (s *Server) diseasesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := s.catalog.All()
	s.writeJSON(w, http.StatusOK, DiseasesResponse{Diseases: all, Count: len(all)})
}

// diseaseHandler returns one knowledge base record.
func (s *Server) diseaseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.ToLower(strings.TrimSpace(r.PathValue("id")))
	info, ok := s.catalog.Lookup(id)
	if !ok {
		s.writeErrorResponse(w, "Unknown disease: "+id, http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
