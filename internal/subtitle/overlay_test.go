package subtitle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapTranslator(m map[string]string) BatchFunc {
	return func(_ context.Context, texts []string) BatchResult {
		ret := make([]string, len(texts))
		for i, text := range texts {
			if tr, ok := m[text]; ok {
				ret[i] = tr
				continue
			}
			ret[i] = text
		}
		return Translated(ret)
	}
}

func TestTranslate_EndToEndSRT(t *testing.T) {
	blocks := Parse(twoCueSRT, DialectSRT)

	translated, report := Translate(context.Background(), blocks, mapTranslator(map[string]string{
		"Hello": "नमस्ते",
		"World": "World",
	}))

	assert.Equal(t, OutcomeTranslated, report.Outcome)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t,
		"1\n00:00:00,000 --> 00:00:01,000\nनमस्ते\n\n2\n00:00:01,000 --> 00:00:02,000\nWorld",
		Reconstruct(translated, DialectSRT),
	)
}

func TestTranslate_PartialResultKeepsTrailingCues(t *testing.T) {
	doc := "1\n00:00:00,000 --> 00:00:01,000\none\n\n" +
		"2\n00:00:01,000 --> 00:00:02,000\ntwo\n\n" +
		"3\n00:00:02,000 --> 00:00:03,000\nthree\n\n" +
		"4\n00:00:03,000 --> 00:00:04,000\nfour\n\n" +
		"5\n00:00:04,000 --> 00:00:05,000\nfive\n"
	blocks := Parse(doc, DialectSRT)
	require.Len(t, blocks, 5)

	calls := 0
	translated, report := Translate(context.Background(), blocks, func(_ context.Context, texts []string) BatchResult {
		calls++
		require.Len(t, texts, 5)
		return Translated([]string{"ek", "do", "teen"})
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, 3, report.Applied)
	require.Len(t, translated, 5)
	assert.Equal(t, []string{"ek", "do", "teen", "four", "five"}, Cues(translated))
	for i := range blocks {
		assert.Equal(t, blocks[i].Kind, translated[i].Kind)
		assert.Equal(t, blocks[i].Cue.Timing, translated[i].Cue.Timing)
		assert.Equal(t, blocks[i].Cue.Sequence, translated[i].Cue.Sequence)
	}
}

func TestTranslate_PreservesNonCueBlocks(t *testing.T) {
	doc := "WEBVTT\nKind: captions\n\n00:00.000 --> 00:01.000\nHello\n\nthis block is not a cue\n\n00:01.000 --> 00:02.000\nWorld"
	blocks := Parse(doc, DialectVTT)
	require.Len(t, blocks, 4)

	translated, report := Translate(context.Background(), blocks, func(_ context.Context, texts []string) BatchResult {
		ret := make([]string, len(texts))
		for i, text := range texts {
			ret[i] = strings.ToUpper(text)
		}
		return Translated(ret)
	})

	assert.Equal(t, OutcomeTranslated, report.Outcome)
	assert.Equal(t,
		"WEBVTT\nKind: captions\n\n00:00.000 --> 00:01.000\nHELLO\n\nthis block is not a cue\n\n00:01.000 --> 00:02.000\nWORLD",
		Reconstruct(translated, DialectVTT),
	)
	assert.Equal(t, blocks[0], translated[0])
	assert.Equal(t, blocks[2], translated[2])
}

func TestTranslate_UnavailableReturnsOriginal(t *testing.T) {
	blocks := Parse(twoCueSRT, DialectSRT)

	translated, report := Translate(context.Background(), blocks, func(context.Context, []string) BatchResult {
		return Unavailable(errors.New("upstream 503"))
	})

	assert.Equal(t, OutcomeUnavailable, report.Outcome)
	assert.Equal(t, "upstream 503", report.Error)
	assert.Equal(t, twoCueSRT, Reconstruct(translated, DialectSRT))
}

func TestTranslate_NilTranslator(t *testing.T) {
	blocks := Parse(twoCueSRT, DialectSRT)

	translated, report := Translate(context.Background(), blocks, nil)

	assert.Equal(t, OutcomeUnavailable, report.Outcome)
	assert.Equal(t, blocks, translated)
}

func TestTranslate_NoCuesSkipsCall(t *testing.T) {
	blocks := Parse("WEBVTT\n\nNOTE nothing here", DialectVTT)

	_, report := Translate(context.Background(), blocks, func(context.Context, []string) BatchResult {
		t.Fatal("translator must not be called without cues")
		return BatchResult{}
	})
	assert.Equal(t, OutcomeSkipped, report.Outcome)
}

func TestTranslate_DoesNotMutateInput(t *testing.T) {
	blocks := Parse(twoCueSRT, DialectSRT)

	_, _ = Translate(context.Background(), blocks, mapTranslator(map[string]string{"Hello": "Hola", "World": "Mundo"}))

	assert.Equal(t, []string{"Hello", "World"}, Cues(blocks))
}

func TestTranslate_ExtraResultsIgnored(t *testing.T) {
	blocks := Parse(twoCueSRT, DialectSRT)

	translated, report := Translate(context.Background(), blocks, func(context.Context, []string) BatchResult {
		return Translated([]string{"a", "b", "c"})
	})

	assert.Equal(t, OutcomeTranslated, report.Outcome)
	assert.Equal(t, []string{"a", "b"}, Cues(translated))
}

func TestTranslate_ThroughWireFormat(t *testing.T) {
	blocks := Parse(twoCueSRT, DialectSRT)

	remote := func(payload string) string {
		// A chatty service answering the numbered batch.
		require.Equal(t, "[1] Hello\n---SUBTITLE---\n[2] World", payload)
		return "Sure, here is the translation:\n[1] नमस्ते\n---SUBTITLE---\n[2] World\n"
	}
	translated, report := Translate(context.Background(), blocks, func(_ context.Context, texts []string) BatchResult {
		return Translated(DecodeBatch(remote(EncodeBatch(texts))))
	})

	assert.Equal(t, OutcomeTranslated, report.Outcome)
	assert.Equal(t, []string{"नमस्ते", "World"}, Cues(translated))
}
