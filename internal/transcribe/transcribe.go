package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/subrender/internal/media"
	"github.com/MimeLyc/subrender/pkg/log"
)

// Stages reported by StageError.
const (
	StageConvert    = "converting"
	StageTranscribe = "transcribing"
	StageCollect    = "collecting"
)

var (
	ErrFFmpegMissing = errors.New("ffmpeg is required for video files")
	ErrNoSubtitles   = errors.New("no subtitles were generated")
)

// StageError is a stage-aware failure with the command that caused it.
type StageError struct {
	Stage   string
	Command media.CommandResult
	Err     error
}

func (e *StageError) Error() string {
	if e.Command.Command == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v (cmd=%s exit=%d)", e.Stage, e.Err, e.Command.Command, e.Command.ExitCode)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Request describes one uploaded media file.
type Request struct {
	InputPath string
	// Language is a whisper language code or "auto".
	Language string
}

// Result holds the raw whisper outputs. A missing format is the empty string.
type Result struct {
	SRT       string
	VTT       string
	Converted bool
	Duration  time.Duration
}

// Health reports which collaborators are installed.
type Health struct {
	ExecutableExists bool `json:"executable_exists"`
	ModelExists      bool `json:"model_exists"`
	FFmpegAvailable  bool `json:"ffmpeg_available"`
}

// Transcriber runs whisper.cpp on a media file, converting it first when needed.
type Transcriber struct {
	whisperPath string
	modelPath   string
	timeout     time.Duration
	converter   *media.Converter
	runner      media.Runner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	readFile    func(name string) ([]byte, error)
	stat        func(name string) (os.FileInfo, error)
}

type Options struct {
	WhisperPath string
	ModelPath   string
	FFmpegPath  string
	Timeout     time.Duration
	Runner      media.Runner
}

func New(opts Options) *Transcriber {
	runner := opts.Runner
	if runner == nil {
		runner = media.ExecRunner{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Transcriber{
		whisperPath: opts.WhisperPath,
		modelPath:   opts.ModelPath,
		timeout:     timeout,
		converter:   media.NewConverter(opts.FFmpegPath, runner),
		runner:      runner,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		readFile:    os.ReadFile,
		stat:        os.Stat,
	}
}

func (t *Transcriber) Health() Health {
	_, modelErr := t.stat(t.modelPath)
	return Health{
		ExecutableExists: media.BinaryAvailable(t.whisperPath),
		ModelExists:      modelErr == nil,
		FFmpegAvailable:  t.converter.Available(),
	}
}

// Run transcribes req.InputPath. The temporary workspace is always removed.
func (t *Transcriber) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "auto"
	}

	workspace, err := t.mkdirTemp("", "subrender-transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := t.removeAll(workspace); err != nil {
			log.Warn("Failed to remove workspace %s: %v", workspace, err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result := &Result{}
	input := req.InputPath
	if media.NeedsConversion(input) {
		if !t.converter.Available() {
			return nil, &StageError{Stage: StageConvert, Err: ErrFFmpegMissing}
		}
		wav := filepath.Join(workspace, "input.wav")
		log.Info("Converting %s to WAV", filepath.Base(input))
		if err := t.converter.ToWAV(ctx, input, wav); err != nil {
			return nil, &StageError{Stage: StageConvert, Err: err}
		}
		input = wav
		result.Converted = true
	}

	prefix := filepath.Join(workspace, "output")
	args := []string{
		"-f", input,
		"-m", t.modelPath,
		"-l", lang,
		"-osrt",
		"-ovtt",
		"-of", prefix,
	}
	log.Info("Running whisper on %s (language=%s)", filepath.Base(req.InputPath), lang)
	cmdResult, err := t.runner.Run(ctx, t.whisperPath, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = context.DeadlineExceeded
		}
		return nil, &StageError{Stage: StageTranscribe, Command: cmdResult, Err: err}
	}
	if out := cmdResult.Stdout; out != "" {
		log.Debug("Whisper output: %s", truncate(out, 500))
	}

	result.SRT = t.readOutput(prefix + ".srt")
	result.VTT = t.readOutput(prefix + ".vtt")
	if result.SRT == "" && result.VTT == "" {
		return nil, &StageError{Stage: StageCollect, Err: ErrNoSubtitles}
	}
	result.Duration = time.Since(start)
	log.Info("Transcription of %s finished in %s", filepath.Base(req.InputPath), result.Duration.Round(time.Millisecond))
	return result, nil
}

func (t *Transcriber) readOutput(path string) string {
	data, err := t.readFile(path)
	if err != nil {
		log.Warn("Whisper output not found: %s", filepath.Base(path))
		return ""
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
