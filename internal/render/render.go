package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/MimeLyc/subrender/internal/media"
	"github.com/MimeLyc/subrender/pkg/log"
)

// Argument placeholders expanded per render.
const (
	PlaceholderComposition = "{composition}"
	PlaceholderOutput      = "{output}"
	PlaceholderProps       = "{props}"
)

const artifactExt = ".mp4"

var (
	ErrInvalidComposition = errors.New("invalid composition id")
	ErrEmptyArtifact      = errors.New("renderer produced no output")
)

var compositionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidComposition reports whether id is safe to pass to the renderer.
func ValidComposition(id string) bool {
	return compositionPattern.MatchString(id)
}

type Request struct {
	CompositionID string
	Props         map[string]any
}

// Artifact is a finished render on disk.
type Artifact struct {
	Path     string
	Size     int64
	Duration time.Duration
	Command  media.CommandResult
}

// Renderer runs an external render command that writes a single video file.
type Renderer struct {
	command   string
	args      []string
	outputDir string
	timeout   time.Duration
	runner    media.Runner
	newName   func() string
}

type Options struct {
	Command   string
	Args      []string
	OutputDir string
	Timeout   time.Duration
	Runner    media.Runner
}

func New(opts Options) *Renderer {
	runner := opts.Runner
	if runner == nil {
		runner = media.ExecRunner{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Renderer{
		command:   opts.Command,
		args:      append([]string{}, opts.Args...),
		outputDir: opts.OutputDir,
		timeout:   timeout,
		runner:    runner,
		newName:   uuid.NewString,
	}
}

func (r *Renderer) OutputDir() string {
	return r.outputDir
}

func (r *Renderer) Available() bool {
	return media.BinaryAvailable(r.command)
}

// Render produces an artifact in the output directory. On failure nothing is left behind.
func (r *Renderer) Render(ctx context.Context, req Request) (*Artifact, error) {
	if !ValidComposition(req.CompositionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidComposition, req.CompositionID)
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	propsPath, err := writeProps(req.Props)
	if err != nil {
		return nil, err
	}
	defer os.Remove(propsPath)

	output := filepath.Join(r.outputDir, r.newName()+artifactExt)
	args := expandArgs(r.args, req.CompositionID, output, propsPath)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	log.Info("Rendering composition %s", req.CompositionID)
	result, err := r.runner.Run(ctx, r.command, args...)
	if err != nil {
		_ = os.Remove(output)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("render %s: %w", req.CompositionID, context.DeadlineExceeded)
		}
		log.Error("Render of %s failed (exit %d): %s", req.CompositionID, result.ExitCode, result.Output())
		return nil, fmt.Errorf("render %s: %w", req.CompositionID, err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(output)
		return nil, fmt.Errorf("render %s: %w", req.CompositionID, ErrEmptyArtifact)
	}

	artifact := &Artifact{
		Path:     output,
		Size:     info.Size(),
		Duration: time.Since(start),
		Command:  result,
	}
	log.Info("Rendered %s to %s (%s in %s)", req.CompositionID, filepath.Base(output),
		humanize.Bytes(uint64(artifact.Size)), artifact.Duration.Round(time.Millisecond))
	return artifact, nil
}

func writeProps(props map[string]any) (string, error) {
	if props == nil {
		props = map[string]any{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode props: %w", err)
	}
	f, err := os.CreateTemp("", "subrender-props-*.json")
	if err != nil {
		return "", fmt.Errorf("create props file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write props file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close props file: %w", err)
	}
	return f.Name(), nil
}

func expandArgs(tmpl []string, composition, output, props string) []string {
	replacer := strings.NewReplacer(
		PlaceholderComposition, composition,
		PlaceholderOutput, output,
		PlaceholderProps, props,
	)
	out := make([]string, 0, len(tmpl))
	for _, arg := range tmpl {
		out = append(out, replacer.Replace(arg))
	}
	return out
}
