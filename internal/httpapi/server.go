package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MimeLyc/subrender/internal/config"
	"github.com/MimeLyc/subrender/internal/janitor"
	"github.com/MimeLyc/subrender/internal/renderjobs"
	"github.com/MimeLyc/subrender/internal/service"
	"github.com/MimeLyc/subrender/internal/subtitle"
	"github.com/MimeLyc/subrender/internal/transcribe"
)

type captionService interface {
	Transcribe(ctx context.Context, req service.TranscribeRequest) (*service.TranscribeResult, error)
	TranslateDocument(ctx context.Context, content string, dialect subtitle.Dialect) (*service.DocumentResult, error)
	TranscriberHealth() transcribe.Health
	TranslatorAvailable() bool
}

type renderService interface {
	Create(ctx context.Context, req service.RenderRequest) (*renderjobs.RenderJob, error)
	RendererAvailable() bool
}

type renderStore interface {
	Get(id string) (*renderjobs.RenderJob, error)
	List() []renderjobs.Summary
	Cancel(id string) bool
	Len() int
}

type janitorStatus interface {
	Status() janitor.Status
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	captions captionService
	renders  renderService
	store    renderStore
	janitor  janitorStatus
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	corsOrigins    []string
	maxUploadBytes int64
	streamInterval time.Duration
	validate       *validator.Validate

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithJanitor(j janitorStatus) Option {
	return func(s *Server) {
		s.janitor = j
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(captions captionService, renders renderService, store renderStore, opts ...Option) *Server {
	s := &Server{
		captions:       captions,
		renders:        renders,
		store:          store,
		corsOrigins:    []string{"*"},
		maxUploadBytes: 512 << 20,
		streamInterval: time.Second,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return requestLogger(cors(s.corsOrigins, s.mux))
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	s.mux.HandleFunc("POST /api/captions/translate", s.handleTranslateCaptions)
	s.mux.HandleFunc("POST /api/renders", s.handleCreateRender)
	s.mux.HandleFunc("GET /api/renders", s.handleListRenders)
	s.mux.HandleFunc("GET /api/renders/stream", s.handleRenderStream)
	s.mux.HandleFunc("GET /api/renders/{id}", s.handleGetRender)
	s.mux.HandleFunc("GET /api/renders/{id}/download", s.handleDownloadRender)
	s.mux.HandleFunc("DELETE /api/renders/{id}", s.handleCancelRender)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
}
