package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/JonMunkholm/salesload/internal/logging"
)

// RunResponse is the JSON body returned for a completed run.
type RunResponse struct {
	core.RunSummary
	RejectionRate float64 `json:"rejectionRate"`
	DurationMs    int64   `json:"durationMs"`
}

func toRunResponse(s core.RunSummary) RunResponse {
	return RunResponse{
		RunSummary:    s,
		RejectionRate: s.RejectionRate(),
		DurationMs:    s.Duration.Milliseconds(),
	}
}

// handleRun runs the pipeline on an uploaded CSV or XLSX file.
// The whole file is decoded in memory, so concurrent runs are bounded by
// the run limiter.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.MaxUploadSize
	if r.ContentLength > maxSize {
		respondError(w, r, &http.MaxBytesError{Limit: maxSize})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, err)
			return
		}
		respondBadRequest(w, r, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondBadRequest(w, r, "no file provided")
		return
	}
	defer file.Close()

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()

	logger := logging.FromContext(ctx)
	logger.Info("run requested", "file", header.Filename, "size", header.Size)

	table, err := s.deps.Decoder.Decode(ctx, file, header.Filename)
	if err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := s.deps.Runner.Run(ctx, table)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(summary))
}

// handleRunStatus reports run limiter occupancy.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Status())
}
