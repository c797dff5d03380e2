package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLanguageTag(t *testing.T) {
	tests := []struct {
		name string
		path string
		tag  string
		want string
	}{
		{name: "cli output", path: "clip.srt", tag: "hi", want: "clip.hi.srt"},
		{name: "nested vtt", path: filepath.Join("dir", "movie.vtt"), tag: "ja", want: filepath.Join("dir", "movie.ja.vtt")},
		{name: "extension case kept", path: "clip.SRT", tag: "hi", want: "clip.hi.SRT"},
		{name: "dotted tag", path: "clip.srt", tag: ".hi", want: "clip.hi.srt"},
		{name: "already tagged", path: "clip.hi.srt", tag: "hi", want: "clip.hi.srt"},
		{name: "no extension", path: filepath.Join("dir", "clip"), tag: "hi", want: filepath.Join("dir", "clip.hi")},
		{name: "dotfile", path: ".srt", tag: "hi", want: ".srt.hi"},
		{name: "empty path", path: "", tag: "hi", want: ""},
		{name: "empty tag", path: "clip.srt", tag: "", want: "clip.srt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithLanguageTag(tt.path, tt.tag))
		})
	}
}

func TestFindOlderThan(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.mp4")
	newPath := filepath.Join(dir, "new.mp4")
	require.NoError(t, os.WriteFile(oldPath, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	got, err := FindOlderThan(dir, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{oldPath}, got)

	got, err = FindOlderThan(filepath.Join(dir, "missing"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("12345"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("123"), 0o644))

	size, err := DirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}
