package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MimeLyc/subrender/internal/render"
	"github.com/MimeLyc/subrender/internal/renderjobs"
	"github.com/MimeLyc/subrender/pkg/log"
)

// RenderService renders compositions and registers the artifacts for download.
type RenderService struct {
	renderer   Renderer
	store      *renderjobs.Store
	defaultTTL time.Duration
	maxTTL     time.Duration
}

func NewRenderService(renderer Renderer, store *renderjobs.Store, defaultTTL, maxTTL time.Duration) *RenderService {
	if defaultTTL <= 0 {
		defaultTTL = renderjobs.DefaultTTL
	}
	if maxTTL < defaultTTL {
		maxTTL = defaultTTL
	}
	return &RenderService{
		renderer:   renderer,
		store:      store,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
	}
}

func (s *RenderService) Store() *renderjobs.Store {
	return s.store
}

func (s *RenderService) RendererAvailable() bool {
	return s.renderer != nil && s.renderer.Available()
}

// Create renders req synchronously and returns the registered job.
func (s *RenderService) Create(ctx context.Context, req RenderRequest) (*renderjobs.RenderJob, error) {
	if !render.ValidComposition(req.CompositionID) {
		return nil, NewError(ErrValidation, "composition_id must be alphanumeric").
			WithContext("composition_id", req.CompositionID)
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > s.maxTTL {
		return nil, NewError(ErrValidation, fmt.Sprintf("ttl must not exceed %s", s.maxTTL))
	}
	if s.renderer == nil {
		return nil, NewError(ErrUnavailable, "renderer is not configured")
	}

	artifact, err := s.renderer.Render(ctx, render.Request{
		CompositionID: req.CompositionID,
		Props:         req.Props,
	})
	if err != nil {
		return nil, classifyRenderError(err).WithContext("composition_id", req.CompositionID)
	}

	job, err := s.store.Create(ctx, renderjobs.CreateRequest{
		ArtifactPath:  artifact.Path,
		CompositionID: req.CompositionID,
		FileSize:      artifact.Size,
		TTL:           ttl,
	})
	if err != nil {
		if rmErr := os.Remove(artifact.Path); rmErr != nil {
			log.Warn("Failed to remove unregistered artifact %s: %v", artifact.Path, rmErr)
		}
		return nil, WrapError(err, ErrUnknown, "register render job")
	}
	return job, nil
}

func classifyRenderError(err error) *Error {
	switch {
	case errors.Is(err, render.ErrInvalidComposition):
		return WrapError(err, ErrValidation, "invalid composition id")
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrTimeout, "render timed out")
	default:
		return WrapError(err, ErrRender, "render failed")
	}
}
