package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subrender/internal/config"
	"github.com/MimeLyc/subrender/internal/janitor"
	"github.com/MimeLyc/subrender/internal/renderjobs"
	"github.com/MimeLyc/subrender/internal/service"
	"github.com/MimeLyc/subrender/internal/subtitle"
	"github.com/MimeLyc/subrender/internal/transcribe"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

type fakeCaptions struct {
	lastReq     service.TranscribeRequest
	uploaded    string
	result      *service.TranscribeResult
	err         error
	translateFn func(content string, dialect subtitle.Dialect) (*service.DocumentResult, error)
}

func (f *fakeCaptions) Transcribe(_ context.Context, req service.TranscribeRequest) (*service.TranscribeResult, error) {
	f.lastReq = req
	data, _ := os.ReadFile(req.InputPath)
	f.uploaded = string(data)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCaptions) TranslateDocument(_ context.Context, content string, dialect subtitle.Dialect) (*service.DocumentResult, error) {
	return f.translateFn(content, dialect)
}

func (f *fakeCaptions) TranscriberHealth() transcribe.Health {
	return transcribe.Health{ExecutableExists: true, ModelExists: true}
}

func (f *fakeCaptions) TranslatorAvailable() bool { return true }

type fakeRenders struct {
	store *renderjobs.Store
	dir   string
	err   error
	last  service.RenderRequest
}

func (f *fakeRenders) Create(ctx context.Context, req service.RenderRequest) (*renderjobs.RenderJob, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, req.CompositionID+".mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		return nil, err
	}
	return f.store.Create(ctx, renderjobs.CreateRequest{
		ArtifactPath:  path,
		CompositionID: req.CompositionID,
		FileSize:      11,
		TTL:           req.TTL,
	})
}

func (f *fakeRenders) RendererAvailable() bool { return true }

type fakeJanitor struct{ next time.Time }

func (f fakeJanitor) Status() janitor.Status {
	return janitor.Status{CronExpr: "@every 10m", NextRun: f.next}
}

type testEnv struct {
	srv      *Server
	captions *fakeCaptions
	renders  *fakeRenders
	store    *renderjobs.Store
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := renderjobs.NewStore()
	captions := &fakeCaptions{}
	renders := &fakeRenders{store: store, dir: t.TempDir()}
	return &testEnv{
		srv:      NewServer(captions, renders, store, opts...),
		captions: captions,
		renders:  renders,
		store:    store,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_RootAndHealth(t *testing.T) {
	next := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	env := newTestEnv(t, WithJanitor(fakeJanitor{next: next}))

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var root rootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	assert.Equal(t, "running", root.Status)
	assert.True(t, root.TranslatorAvailable)

	rec = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.ExecutableExists)
	assert.Equal(t, 0, health.LiveRenders)
	require.NotNil(t, health.NextSweep)
	assert.True(t, next.Equal(*health.NextSweep))

	rec = env.do(t, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestServer_Transcribe(t *testing.T) {
	env := newTestEnv(t)
	env.captions.result = &service.TranscribeResult{
		Filename:   "clip.mp4",
		Language:   "hi",
		SRT:        "1\n00:00:01,000 --> 00:00:02,000\nNamaste",
		Translated: true,
	}

	body, contentType := multipartUpload(t, "clip.mp4", "media", map[string]string{"language": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/transcribe?translate_to_hinglish=false", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "media", env.captions.uploaded)
	assert.Equal(t, "clip.mp4", env.captions.lastReq.Filename)
	assert.Equal(t, "hi", env.captions.lastReq.Language)
	assert.False(t, env.captions.lastReq.Translate)
	assert.Equal(t, ".mp4", filepath.Ext(env.captions.lastReq.InputPath))
	assert.NoFileExists(t, env.captions.lastReq.InputPath)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["success"])
	assert.Equal(t, true, got["translated_to_hinglish"])
	assert.Equal(t, "clip.mp4", got["filename"])
}

func TestServer_Transcribe_RequiresFile(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("language", "en"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Transcribe_MapsServiceErrors(t *testing.T) {
	env := newTestEnv(t)
	env.captions.err = service.NewError(service.ErrValidation, "FFmpeg is required for video files")

	body, contentType := multipartUpload(t, "clip.mkv", "media", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var got errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Validation", got.Type)
	assert.Contains(t, got.Error, "FFmpeg")
	assert.NotEmpty(t, got.Advice)
	assert.True(t, env.captions.lastReq.Translate)
}

func TestServer_UnavailableSetsRetryAfter(t *testing.T) {
	env := newTestEnv(t)
	env.renders.err = service.NewError(service.ErrUnavailable, "renderer is not configured")

	rec := env.do(t, http.MethodPost, "/api/renders", strings.NewReader(`{"composition_id":"a"}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	env.renders.err = service.NewError(service.ErrRender, "render failed")
	rec = env.do(t, http.MethodPost, "/api/renders", strings.NewReader(`{"composition_id":"a"}`))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestServer_TranslateCaptions(t *testing.T) {
	env := newTestEnv(t)
	env.captions.translateFn = func(content string, dialect subtitle.Dialect) (*service.DocumentResult, error) {
		assert.Equal(t, subtitle.DialectVTT, dialect)
		return &service.DocumentResult{
			Content: strings.ToUpper(content),
			Report:  subtitle.Report{Outcome: subtitle.OutcomeTranslated, Sent: 1, Applied: 1},
		}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/captions/translate",
		strings.NewReader(`{"format":"vtt","content":"webvtt"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "vtt", got["format"])
	assert.Equal(t, "WEBVTT", got["content"])

	rec = env.do(t, http.MethodPost, "/api/captions/translate",
		strings.NewReader(`{"format":"ass","content":"x"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var verr errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verr))
	require.Len(t, verr.Details, 1)
	assert.Contains(t, verr.Details[0], "oneof")
}

func TestServer_RenderLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/renders",
		strings.NewReader(`{"composition_id":"intro","props":{"title":"hi"},"ttl_seconds":120}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createRenderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/renders/"+created.ID+"/download", created.DownloadURL)
	assert.Equal(t, int64(11), created.FileSize)
	assert.Equal(t, 2*time.Minute, env.renders.last.TTL)
	assert.Equal(t, "hi", env.renders.last.Props["title"])

	rec = env.do(t, http.MethodGet, "/api/renders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status renderStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "intro", status.CompositionID)
	assert.InDelta(t, 120, status.SecondsRemaining, 2)

	rec = env.do(t, http.MethodGet, "/api/renders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []renderjobs.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = env.do(t, http.MethodGet, created.DownloadURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="intro.mp4"`)

	rec = env.do(t, http.MethodDelete, "/api/renders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"`+created.ID+`","cancelled":true}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/renders/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"id":"`+created.ID+`","cancelled":false}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/renders/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, created.DownloadURL, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateRender_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/renders", strings.NewReader(`{"props":{}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/renders", strings.NewReader(`{"composition_id":"a","ttl_seconds":-1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/renders", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.renders.err = service.NewError(service.ErrRender, "render failed")
	rec = env.do(t, http.MethodPost, "/api/renders", strings.NewReader(`{"composition_id":"a"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_DownloadArtifactMissing(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.renders.Create(context.Background(), service.RenderRequest{CompositionID: "gone", TTL: time.Minute})
	require.NoError(t, err)
	require.NoError(t, os.Remove(job.ArtifactPath))

	rec := env.do(t, http.MethodGet, "/api/renders/"+job.ID+"/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, env.store.Len())
}

func TestServer_RenderStream(t *testing.T) {
	env := newTestEnv(t, WithStreamInterval(20*time.Millisecond))
	_, err := env.renders.Create(context.Background(), service.RenderRequest{CompositionID: "intro", TTL: time.Minute})
	require.NoError(t, err)

	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/renders/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	var list []renderjobs.Summary
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "intro", list[0].CompositionID)
}

func TestServer_CORSAndRequestID(t *testing.T) {
	env := newTestEnv(t, WithCORSOrigins([]string{"https://app.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/renders", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/renders", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "given-id")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "given-id", rec.Header().Get(requestIDHeader))
}

func testSettings() config.RuntimeSettings {
	return config.RuntimeSettings{
		LLMAPIURL:        "https://old.example/v1",
		LLMAPIKey:        "old-ak",
		LLMModel:         "old-model",
		JanitorCron:      "@every 10m",
		TargetLanguage:   "hi",
		TranslateEnabled: true,
	}
}

const updatedSettingsBody = `{"llm_api_url":"https://new.example/v1","llm_api_key":"new-ak","llm_model":"new-model","janitor_cron":"*/10 * * * *","target_language":"bn","translate_enabled":false}`

func TestServer_GetSettings(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	env := newTestEnv(t, WithRuntimeSettingsStore(store))

	rec := env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, store.current, got)
}

func TestServer_Settings_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_UpdateSettings(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	env := newTestEnv(t, WithRuntimeSettingsStore(store))

	rec := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(updatedSettingsBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "https://new.example/v1", got.LLMAPIURL)
	require.Equal(t, "new-ak", got.LLMAPIKey)
	require.Equal(t, "new-model", got.LLMModel)
	require.Equal(t, "*/10 * * * *", got.JanitorCron)
	require.Equal(t, "bn", got.TargetLanguage)
	require.False(t, got.TranslateEnabled)
	require.Equal(t, got, store.current)
}

func TestServer_UpdateSettings_RejectsInvalid(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}
	env := newTestEnv(t, WithRuntimeSettingsStore(store))

	rec := env.do(t, http.MethodPut, "/api/settings",
		strings.NewReader(`{"llm_api_url":"u","llm_model":"m","janitor_cron":"bogus","target_language":"hi"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, testSettings(), store.current)
}

func TestServer_UpdateSettings_StoreFailure(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings(), updateErr: errors.New("save failed")}
	env := newTestEnv(t, WithRuntimeSettingsStore(store))

	rec := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(updatedSettingsBody))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_UpdateSettings_AppliesRuntimeSettingsImmediately(t *testing.T) {
	store := &fakeSettingsStore{current: testSettings()}

	var applied config.RuntimeSettings
	var applyCalls int
	env := newTestEnv(t,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			applyCalls++
			return nil
		}),
	)

	rec := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(updatedSettingsBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, applyCalls)
	require.Equal(t, "bn", applied.TargetLanguage)
	require.Equal(t, "*/10 * * * *", applied.JanitorCron)
}
