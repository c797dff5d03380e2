package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/subrender/pkg/log"
)

// Extensions whisper cannot read directly.
var conversionExts = map[string]struct{}{
	".mp4":  {},
	".m4a":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
}

// NeedsConversion reports whether path must be converted to WAV before transcription.
func NeedsConversion(path string) bool {
	_, ok := conversionExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Converter turns audio or video into 16 kHz mono PCM WAV.
type Converter struct {
	ffmpegCmd string
	runner    Runner
}

func NewConverter(ffmpegCmd string, runner Runner) *Converter {
	if strings.TrimSpace(ffmpegCmd) == "" {
		ffmpegCmd = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Converter{
		ffmpegCmd: ffmpegCmd,
		runner:    runner,
	}
}

func (c *Converter) Available() bool {
	return BinaryAvailable(c.ffmpegCmd)
}

// ToWAV converts input into output, overwriting output.
func (c *Converter) ToWAV(ctx context.Context, input, output string) error {
	result, err := c.runner.Run(ctx, c.ffmpegCmd, c.wavArgs(input, output)...)
	if err != nil {
		log.Error("ffmpeg conversion failed (exit %d): %s", result.ExitCode, result.Output())
		return fmt.Errorf("convert %s to wav: %w", filepath.Base(input), err)
	}
	return nil
}

func (Converter) wavArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		output,
	}
}
