package service

import (
	"context"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subrender/internal/persistence"
	"github.com/MimeLyc/subrender/internal/render"
	"github.com/MimeLyc/subrender/internal/subtitle"
	"github.com/MimeLyc/subrender/internal/transcribe"
)

// Transcriber produces raw SRT and VTT documents from a media file.
type Transcriber interface {
	Run(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
	Health() transcribe.Health
}

// BatchTranslator translates a batch of cue texts in one call.
type BatchTranslator interface {
	Batch(ctx context.Context, texts []string) subtitle.BatchResult
	Available() bool
	Target() language.Tag
}

// CaptionCache stores finished document translations.
type CaptionCache interface {
	GetCaptionCache(ctx context.Context, key string, now time.Time) (persistence.CaptionCacheEntry, bool, error)
	PutCaptionCache(ctx context.Context, entry persistence.CaptionCacheEntry) error
}

// Renderer turns a composition into a video artifact.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Artifact, error)
	Available() bool
}

// TranscribeRequest describes an uploaded file awaiting transcription.
type TranscribeRequest struct {
	InputPath string
	Filename  string
	// Language is a whisper language code or "auto".
	Language  string
	Translate bool
}

// TranslationSummary reports the overlay outcome per output format.
type TranslationSummary struct {
	SRT *subtitle.Report `json:"srt,omitempty"`
	VTT *subtitle.Report `json:"vtt,omitempty"`
}

type TranscribeResult struct {
	Filename         string              `json:"filename"`
	Language         string              `json:"language"`
	DetectedLanguage string              `json:"detected_language,omitempty"`
	SRT              string              `json:"srt"`
	VTT              string              `json:"vtt"`
	Converted        bool                `json:"converted"`
	Translated       bool                `json:"translated"`
	Translation      *TranslationSummary `json:"translation,omitempty"`
}

// DocumentResult is a translated caption document.
type DocumentResult struct {
	Content string          `json:"content"`
	Report  subtitle.Report `json:"report"`
	Cached  bool            `json:"cached"`
}

type RenderRequest struct {
	CompositionID string
	Props         map[string]any
	// TTL <= 0 selects the configured default.
	TTL time.Duration
}
