package subtitle

import (
	"context"
	"errors"

	"github.com/MimeLyc/subrender/pkg/log"
)

// ErrTranslatorUnavailable is reported when no translator is configured.
var ErrTranslatorUnavailable = errors.New("translator unavailable")

// BatchResult is the outcome of one external batch translation call.
// A non-nil Err means the translator was unavailable and Texts is ignored.
type BatchResult struct {
	Texts []string
	Err   error
}

func Translated(texts []string) BatchResult {
	return BatchResult{Texts: texts}
}

func Unavailable(err error) BatchResult {
	if err == nil {
		err = ErrTranslatorUnavailable
	}
	return BatchResult{Err: err}
}

func (r BatchResult) Available() bool {
	return r.Err == nil
}

// BatchFunc translates an ordered list of cue texts in a single call. It may
// return fewer texts than it was given.
type BatchFunc func(ctx context.Context, texts []string) BatchResult

type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeTranslated  Outcome = "translated"
	OutcomePartial     Outcome = "partial"
	OutcomeUnavailable Outcome = "unavailable"
)

// Report describes what Translate did to a block sequence.
type Report struct {
	Outcome Outcome `json:"outcome"`
	Sent    int     `json:"sent"`
	Applied int     `json:"applied"`
	Error   string  `json:"error,omitempty"`
}

// Translate replaces cue text with translations from a single batch call.
//
// Header and raw blocks are never touched and block order is preserved. When
// the translator is unavailable the original blocks come back unchanged. When
// it returns fewer texts than cues, only the leading cues are replaced and the
// rest keep their original text.
func Translate(ctx context.Context, blocks []Block, translate BatchFunc) ([]Block, Report) {
	out := make([]Block, len(blocks))
	cueIdx := make([]int, 0, len(blocks))
	texts := make([]string, 0, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
		if b.Kind == KindCue && b.Cue != nil {
			cueIdx = append(cueIdx, i)
			texts = append(texts, b.Cue.Text)
		}
	}

	if len(texts) == 0 {
		return out, Report{Outcome: OutcomeSkipped}
	}

	report := Report{Sent: len(texts)}
	if translate == nil {
		report.Outcome = OutcomeUnavailable
		report.Error = ErrTranslatorUnavailable.Error()
		return out, report
	}

	log.Info("Translating %d subtitle blocks in one batch", len(texts))
	result := translate(ctx, texts)
	if !result.Available() {
		log.Warn("Batch translation unavailable, keeping original text: %v", result.Err)
		report.Outcome = OutcomeUnavailable
		report.Error = result.Err.Error()
		return out, report
	}

	applied := min(len(result.Texts), len(cueIdx))
	for n := 0; n < applied; n++ {
		out[cueIdx[n]].Cue.Text = result.Texts[n]
	}
	report.Applied = applied

	if applied < len(cueIdx) {
		log.Warn("Batch translation returned %d of %d segments, trailing cues keep original text", applied, len(cueIdx))
		report.Outcome = OutcomePartial
		return out, report
	}

	log.Info("Batch translation complete (%d blocks)", applied)
	report.Outcome = OutcomeTranslated
	return out, report
}
