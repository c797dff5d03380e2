package httpapi

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MimeLyc/subrender/internal/renderjobs"
	"github.com/MimeLyc/subrender/internal/service"
	"github.com/MimeLyc/subrender/pkg/log"
)

type createRenderRequest struct {
	CompositionID string         `json:"composition_id" validate:"required,max=128"`
	Props         map[string]any `json:"props"`
	TTLSeconds    int            `json:"ttl_seconds" validate:"gte=0"`
}

type createRenderResponse struct {
	ID          string    `json:"id"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	FileSize    int64     `json:"file_size"`
}

type renderStatusResponse struct {
	renderjobs.Summary
	DownloadURL string `json:"download_url"`
}

func downloadURL(id string) string {
	return "/api/renders/" + id + "/download"
}

func (s *Server) handleCreateRender(w http.ResponseWriter, r *http.Request) {
	var req createRenderRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	job, err := s.renders.Create(r.Context(), service.RenderRequest{
		CompositionID: req.CompositionID,
		Props:         req.Props,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRenderResponse{
		ID:          job.ID,
		DownloadURL: downloadURL(job.ID),
		ExpiresAt:   job.ExpiresAt,
		FileSize:    job.FileSize,
	})
}

func (s *Server) handleListRenders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetRender(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupRender(w, r)
	if !ok {
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, renderStatusResponse{
		Summary: renderjobs.Summary{
			ID:               job.ID,
			CompositionID:    job.CompositionID,
			CreatedAt:        job.CreatedAt,
			ExpiresAt:        job.ExpiresAt,
			FileSize:         job.FileSize,
			SecondsRemaining: job.SecondsRemaining(now),
		},
		DownloadURL: downloadURL(job.ID),
	})
}

func (s *Server) handleDownloadRender(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupRender(w, r)
	if !ok {
		return
	}
	// The open handle keeps the content readable if the job expires mid-transfer.
	f, err := os.Open(job.ArtifactPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "render not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := job.CompositionID + filepath.Ext(job.ArtifactPath)
	if job.CompositionID == "" {
		name = filepath.Base(job.ArtifactPath)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleCancelRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancelled := s.store.Cancel(id)
	status := http.StatusOK
	if !cancelled {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]any{
		"id":        id,
		"cancelled": cancelled,
	})
}

func (s *Server) lookupRender(w http.ResponseWriter, r *http.Request) (*renderjobs.RenderJob, bool) {
	id := r.PathValue("id")
	job, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, renderjobs.ErrNotFound) {
			if errors.Is(err, renderjobs.ErrArtifactMissing) {
				log.Warn("Render %s was registered but its artifact is gone", id)
			}
			writeError(w, http.StatusNotFound, "render not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return job, true
}
