package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
)

const noImageMessage = "No image selected"

// analyzeHandler diagnoses one uploaded leaf photo.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	img, forceOffline, ok := s.parseAnalyzeRequest(w, r)
	if !ok {
		return // error already written
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	logger := s.logger.With("remote_addr", r.RemoteAddr, "filename", img.Name)
	session, err := s.session(nil, logger)
	if err != nil {
		s.writeErrorResponse(w, "Analysis unavailable", http.StatusInternalServerError)
		return
	}

	res, err := session.Analyze(ctx, img, forceOffline)
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// parseAnalyzeRequest reads the multipart upload. On failure it writes the
// error response and returns ok=false.
func (s *Server) parseAnalyzeRequest(w http.ResponseWriter, r *http.Request) (*orchestrator.Image, bool, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "too large"):
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, http.ErrNotMultipart):
			s.writeErrorResponse(w, noImageMessage, http.StatusBadRequest)
		default:
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, false, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, noImageMessage, http.StatusBadRequest)
		return nil, false, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false, false
	}
	uploadSizeBytes.Observe(float64(len(data)))

	forceOffline := false
	if v := strings.TrimSpace(r.FormValue("force_offline")); v != "" {
		forceOffline, err = strconv.ParseBool(v)
		if err != nil {
			s.writeErrorResponse(w, "Invalid force_offline value", http.StatusBadRequest)
			return nil, false, false
		}
	}

	return &orchestrator.Image{Name: header.Filename, Data: data}, forceOffline, true
}

// writeAnalyzeError maps the two analysis failures onto HTTP statuses.
func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNoImage):
		s.writeErrorResponse(w, noImageMessage, http.StatusBadRequest)
	case errors.Is(err, orchestrator.ErrBusy):
		s.writeErrorResponse(w, "An analysis is already in progress", http.StatusConflict)
	default:
		s.logger.Error("Analysis failed", "error", err)
		s.writeErrorResponse(w, "Analysis failed", http.StatusInternalServerError)
	}
}
