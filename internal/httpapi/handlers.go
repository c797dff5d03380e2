package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MimeLyc/subrender/internal/config"
	"github.com/MimeLyc/subrender/internal/service"
	"github.com/MimeLyc/subrender/internal/subtitle"
	"github.com/MimeLyc/subrender/pkg/log"
)

type rootResponse struct {
	Message             string            `json:"message"`
	Status              string            `json:"status"`
	FFmpegAvailable     bool              `json:"ffmpeg_available"`
	TranslatorAvailable bool              `json:"translator_available"`
	RendererAvailable   bool              `json:"renderer_available"`
	Endpoints           map[string]string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	health := s.captions.TranscriberHealth()
	writeJSON(w, http.StatusOK, rootResponse{
		Message:             "Caption transcription and render service",
		Status:              "running",
		FFmpegAvailable:     health.FFmpegAvailable,
		TranslatorAvailable: s.captions.TranslatorAvailable(),
		RendererAvailable:   s.renders.RendererAvailable(),
		Endpoints: map[string]string{
			"transcribe": "/transcribe",
			"translate":  "/api/captions/translate",
			"renders":    "/api/renders",
			"health":     "/health",
		},
	})
}

type healthResponse struct {
	Status              string     `json:"status"`
	ExecutableExists    bool       `json:"executable_exists"`
	ModelExists         bool       `json:"model_exists"`
	FFmpegAvailable     bool       `json:"ffmpeg_available"`
	TranslatorAvailable bool       `json:"translator_available"`
	RendererAvailable   bool       `json:"renderer_available"`
	LiveRenders         int        `json:"live_renders"`
	RenderDirBytes      int64      `json:"render_dir_bytes"`
	NextSweep           *time.Time `json:"next_sweep,omitempty"`
	LastSweep           *time.Time `json:"last_sweep,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.captions.TranscriberHealth()
	resp := healthResponse{
		Status:              "healthy",
		ExecutableExists:    health.ExecutableExists,
		ModelExists:         health.ModelExists,
		FFmpegAvailable:     health.FFmpegAvailable,
		TranslatorAvailable: s.captions.TranslatorAvailable(),
		RendererAvailable:   s.renders.RendererAvailable(),
		LiveRenders:         s.store.Len(),
	}
	if s.janitor != nil {
		st := s.janitor.Status()
		resp.RenderDirBytes = st.DiskUsage
		if !st.NextRun.IsZero() {
			resp.NextSweep = &st.NextRun
		}
		if !st.LastRun.IsZero() {
			resp.LastSweep = &st.LastRun
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type transcribeResponse struct {
	Success bool `json:"success"`
	*service.TranscribeResult
	TranslatedToHinglish bool `json:"translated_to_hinglish"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	translate, err := parseTranslateFlag(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inputPath, size, err := saveUpload(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(inputPath)
	log.Debug("Saved upload %s (%d bytes) to %s", header.Filename, size, inputPath)

	result, err := s.captions.Transcribe(r.Context(), service.TranscribeRequest{
		InputPath: inputPath,
		Filename:  header.Filename,
		Language:  r.FormValue("language"),
		Translate: translate,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{
		Success:              true,
		TranscribeResult:     result,
		TranslatedToHinglish: result.Translated,
	})
}

// parseTranslateFlag reads "translate" or its older alias, defaulting to true.
func parseTranslateFlag(r *http.Request) (bool, error) {
	for _, key := range []string{"translate", "translate_to_hinglish"} {
		raw := strings.TrimSpace(r.FormValue(key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("invalid %s value %q", key, raw)
		}
		return v, nil
	}
	return true, nil
}

func saveUpload(src io.Reader, filename string) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".wav"
	}
	f, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("save upload: %w", errors.Join(copyErr, closeErr))
	}
	return f.Name(), n, nil
}

type translateCaptionsRequest struct {
	Format  string `json:"format" validate:"required,oneof=srt vtt SRT VTT webvtt"`
	Content string `json:"content" validate:"required"`
}

type translateCaptionsResponse struct {
	Format string `json:"format"`
	*service.DocumentResult
}

func (s *Server) handleTranslateCaptions(w http.ResponseWriter, r *http.Request) {
	var req translateCaptionsRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	dialect, err := subtitle.ParseDialect(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := s.captions.TranslateDocument(r.Context(), req.Content, dialect)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, translateCaptionsResponse{Format: dialect.String(), DocumentResult: doc})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// decodeAndValidate writes a 400 and returns false when the body is not a valid v.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:   "validation failed",
				Details: formatValidationErrors(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func formatValidationErrors(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

type errorResponse struct {
	Error   string   `json:"error"`
	Type    string   `json:"type,omitempty"`
	Advice  string   `json:"advice,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Retry-After seconds sent with Unavailable errors.
const unavailableRetryAfter = "60"

func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := service.AsError(err)
	status := svcErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error("Request failed: %v", svcErr)
	}
	if service.IsErrorType(svcErr, service.ErrUnavailable) {
		w.Header().Set("Retry-After", unavailableRetryAfter)
	}
	writeJSON(w, status, errorResponse{
		Error:  svcErr.Message,
		Type:   svcErr.Type.String(),
		Advice: svcErr.Advice(),
	})
}
