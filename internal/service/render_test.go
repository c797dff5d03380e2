package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subrender/internal/render"
	"github.com/MimeLyc/subrender/internal/renderjobs"
)

type fakeRenderer struct {
	dir   string
	err   error
	calls int
	req   render.Request
}

func (f *fakeRenderer) Render(_ context.Context, req render.Request) (*render.Artifact, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, req.CompositionID+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return nil, err
	}
	return &render.Artifact{Path: path, Size: 5}, nil
}

func (f *fakeRenderer) Available() bool { return true }

func TestRenderService_Create(t *testing.T) {
	renderer := &fakeRenderer{dir: t.TempDir()}
	store := renderjobs.NewStore()
	svc := NewRenderService(renderer, store, time.Hour, 2*time.Hour)

	job, err := svc.Create(context.Background(), RenderRequest{
		CompositionID: "Intro",
		Props:         map[string]any{"title": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Intro", job.CompositionID)
	assert.Equal(t, int64(5), job.FileSize)
	assert.WithinDuration(t, job.CreatedAt.Add(time.Hour), job.ExpiresAt, time.Millisecond)
	assert.Equal(t, "x", renderer.req.Props["title"])

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	require.True(t, store.Cancel(job.ID))
}

func TestRenderService_Validation(t *testing.T) {
	renderer := &fakeRenderer{dir: t.TempDir()}
	svc := NewRenderService(renderer, renderjobs.NewStore(), time.Hour, 2*time.Hour)

	_, err := svc.Create(context.Background(), RenderRequest{CompositionID: "--help"})
	assert.True(t, IsErrorType(err, ErrValidation))

	_, err = svc.Create(context.Background(), RenderRequest{CompositionID: "Intro", TTL: 3 * time.Hour})
	assert.True(t, IsErrorType(err, ErrValidation))
	assert.Equal(t, 0, renderer.calls)
}

func TestRenderService_RenderFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "timeout", err: context.DeadlineExceeded, want: ErrTimeout},
		{name: "command", err: errors.New("exit status 1"), want: ErrRender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := renderjobs.NewStore()
			svc := NewRenderService(&fakeRenderer{err: tt.err}, store, time.Hour, time.Hour)
			_, err := svc.Create(context.Background(), RenderRequest{CompositionID: "Intro"})
			require.Error(t, err)
			assert.True(t, IsErrorType(err, tt.want))
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestError_HTTPStatus(t *testing.T) {
	assert.Equal(t, 400, NewError(ErrValidation, "x").HTTPStatus())
	assert.Equal(t, 404, NewError(ErrNotFound, "x").HTTPStatus())
	assert.Equal(t, 503, NewError(ErrUnavailable, "x").HTTPStatus())
	assert.Equal(t, 504, NewError(ErrTimeout, "x").HTTPStatus())
	assert.Equal(t, 500, NewError(ErrRender, "x").HTTPStatus())
}

func TestError_FormatAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := WrapError(cause, ErrRender, "render failed").WithContext("b", 2).WithContext("a", 1)
	assert.Equal(t, "[Render] render failed | context: a=1, b=2 | cause: root", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.True(t, IsErrorType(AsError(errors.New("plain")), ErrUnknown))
	assert.Nil(t, AsError(nil))
}

func TestSafeExecute(t *testing.T) {
	err := SafeExecute(func() error { panic("boom") })
	assert.True(t, IsErrorType(err, ErrUnknown))
}
