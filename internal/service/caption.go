package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subrender/internal/persistence"
	"github.com/MimeLyc/subrender/internal/subtitle"
	"github.com/MimeLyc/subrender/internal/transcribe"
	"github.com/MimeLyc/subrender/pkg/log"
)

const autoLanguage = "auto"

// CaptionService transcribes media and overlays translations on the resulting captions.
type CaptionService struct {
	transcriber Transcriber
	translator  BatchTranslator
	cache       CaptionCache
	cacheTTL    time.Duration
	now         func() time.Time
}

type CaptionOption func(*CaptionService)

// WithCaptionCache enables reuse of earlier translations of identical documents.
func WithCaptionCache(cache CaptionCache, ttl time.Duration) CaptionOption {
	return func(s *CaptionService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func NewCaptionService(transcriber Transcriber, translator BatchTranslator, opts ...CaptionOption) *CaptionService {
	s := &CaptionService{
		transcriber: transcriber,
		translator:  translator,
		cacheTTL:    24 * time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CaptionService) TranscriberHealth() transcribe.Health {
	if s.transcriber == nil {
		return transcribe.Health{}
	}
	return s.transcriber.Health()
}

func (s *CaptionService) TranslatorAvailable() bool {
	return s.translator != nil && s.translator.Available()
}

// Transcribe runs whisper on the upload and, when asked, translates both outputs.
func (s *CaptionService) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return nil, NewError(ErrValidation, "input file is required")
	}
	if s.transcriber == nil {
		return nil, NewError(ErrUnavailable, "transcriber is not configured")
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = autoLanguage
	}

	log.Info("Processing: %s", req.Filename)
	raw, err := s.transcriber.Run(ctx, transcribe.Request{InputPath: req.InputPath, Language: lang})
	if err != nil {
		return nil, classifyTranscribeError(err).WithContext("file", req.Filename)
	}

	result := &TranscribeResult{
		Filename:  req.Filename,
		Language:  lang,
		SRT:       raw.SRT,
		VTT:       raw.VTT,
		Converted: raw.Converted,
	}

	// Detection is informational; auto mode always translates because mixed
	// Hinglish transcripts are usually detected as English.
	source := language.Und
	if lang == autoLanguage {
		if detected := detectDocumentLanguage(raw); detected != language.Und {
			result.DetectedLanguage = detected.String()
		}
	} else if tag, err := language.Parse(lang); err == nil {
		source = tag
	}

	if !req.Translate || !s.shouldTranslate(source) {
		return result, nil
	}

	summary, err := s.translateBoth(ctx, raw)
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return nil, svcErr
		}
		return nil, WrapError(err, ErrTimeout, "translation aborted")
	}
	result.Translation = &summary.TranslationSummary
	result.SRT, result.VTT = summary.srt, summary.vtt
	result.Translated = summary.applied()
	log.Info("Transcription of %s complete (translated=%t)", req.Filename, result.Translated)
	return result, nil
}

// shouldTranslate skips sources requested as English; everything else, including
// an undetermined source, gets the overlay.
func (s *CaptionService) shouldTranslate(source language.Tag) bool {
	if !s.TranslatorAvailable() {
		return false
	}
	base, _ := source.Base()
	return base.String() != "en"
}

type bothResult struct {
	TranslationSummary
	srt string
	vtt string
}

func (b *bothResult) applied() bool {
	for _, r := range []*subtitle.Report{b.SRT, b.VTT} {
		if r != nil && (r.Outcome == subtitle.OutcomeTranslated || r.Outcome == subtitle.OutcomePartial) {
			return true
		}
	}
	return false
}

// translateBoth overlays SRT and VTT concurrently. Each document makes its own batch call.
func (s *CaptionService) translateBoth(ctx context.Context, raw *transcribe.Result) (*bothResult, error) {
	out := &bothResult{srt: raw.SRT, vtt: raw.VTT}
	g, gctx := errgroup.WithContext(ctx)
	if raw.SRT != "" {
		g.Go(func() error {
			return SafeExecute(func() error {
				doc, err := s.TranslateDocument(gctx, raw.SRT, subtitle.DialectSRT)
				if err != nil {
					return err
				}
				out.srt = doc.Content
				out.SRT = &doc.Report
				return nil
			})
		})
	}
	if raw.VTT != "" {
		g.Go(func() error {
			return SafeExecute(func() error {
				doc, err := s.TranslateDocument(gctx, raw.VTT, subtitle.DialectVTT)
				if err != nil {
					return err
				}
				out.vtt = doc.Content
				out.VTT = &doc.Report
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TranslateDocument overlays translations on one caption document. Translator
// failures are reported in the result, only context cancellation is an error.
func (s *CaptionService) TranslateDocument(ctx context.Context, content string, dialect subtitle.Dialect) (*DocumentResult, error) {
	var target string
	if s.translator != nil {
		target = s.translator.Target().String()
	}
	key := persistence.CaptionCacheKey(dialect.String(), target, content)
	available := s.TranslatorAvailable()
	if cached, ok := s.cached(ctx, key); ok && available {
		blocks := subtitle.Parse(content, dialect)
		n := len(subtitle.Cues(blocks))
		return &DocumentResult{
			Content: cached,
			Report:  subtitle.Report{Outcome: subtitle.OutcomeTranslated, Sent: n, Applied: n},
			Cached:  true,
		}, nil
	}

	blocks := subtitle.Parse(content, dialect)
	var fn subtitle.BatchFunc
	if available {
		fn = s.translator.Batch
	}
	translated, report := subtitle.Translate(ctx, blocks, fn)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &DocumentResult{
		Content: subtitle.Reconstruct(translated, dialect),
		Report:  report,
	}
	if report.Outcome == subtitle.OutcomeTranslated {
		s.store(ctx, key, dialect, target, doc.Content)
	}
	return doc, nil
}

func (s *CaptionService) cached(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	entry, ok, err := s.cache.GetCaptionCache(ctx, key, s.now())
	if err != nil {
		log.Warn("Caption cache lookup failed: %v", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	log.Debug("Caption cache hit %s", key[:12])
	return entry.Translated, true
}

func (s *CaptionService) store(ctx context.Context, key string, dialect subtitle.Dialect, target, content string) {
	if s.cache == nil {
		return
	}
	now := s.now()
	err := s.cache.PutCaptionCache(ctx, persistence.CaptionCacheEntry{
		CacheKey:       key,
		Dialect:        dialect.String(),
		TargetLanguage: target,
		Translated:     content,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.cacheTTL),
	})
	if err != nil {
		log.Warn("Caption cache store failed: %v", err)
	}
}

func detectDocumentLanguage(raw *transcribe.Result) language.Tag {
	if raw.SRT != "" {
		return subtitle.DetectLanguage(subtitle.Parse(raw.SRT, subtitle.DialectSRT))
	}
	return subtitle.DetectLanguage(subtitle.Parse(raw.VTT, subtitle.DialectVTT))
}

func classifyTranscribeError(err error) *Error {
	var stageErr *transcribe.StageError
	switch {
	case errors.Is(err, transcribe.ErrFFmpegMissing):
		return WrapError(err, ErrValidation, "FFmpeg is required for video files")
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrTimeout, "transcription timed out")
	case errors.Is(err, transcribe.ErrNoSubtitles):
		return WrapError(err, ErrTranscription, "no subtitles were generated, check that the audio contains speech")
	case errors.As(err, &stageErr) && stageErr.Stage == transcribe.StageConvert:
		return WrapError(err, ErrConversion, "failed to convert file to WAV")
	case errors.As(err, &stageErr):
		return WrapError(err, ErrTranscription, "whisper failed: "+stageErr.Command.Output()).
			WithContext("exit_code", stageErr.Command.ExitCode)
	default:
		return WrapError(err, ErrTranscription, "transcription failed")
	}
}

// DialectForFilename picks SRT or VTT from an uploaded caption file name.
func DialectForFilename(name string) (subtitle.Dialect, error) {
	d, err := subtitle.DialectFromPath(name)
	if err != nil {
		return d, WrapError(err, ErrValidation, "unsupported caption format")
	}
	return d, nil
}
