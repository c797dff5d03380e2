package translator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/subrender/internal/subtitle"
)

const systemPrompt = "You are a translation assistant. Do not use internet search. Respond only with translations."

const hinglishRules = `Convert the following subtitle texts to Hinglish (a natural mix of Hindi and English).

CRITICAL RULES:
1. ONLY translate words that are clearly Hindi/Urdu/regional language words to Devanagari script
2. Keep ALL English words in English - do NOT transliterate English words to Devanagari
3. If a word seems like it could be English (even if mispronounced in audio), keep it in English
4. Examples of what to do:
   - "do you have a peela shawl" → "do you have a पीला shawl"
   - "main kya talking about" → "मैं क्या talking about"
   - "it's very sundar" → "it's very सुंदर"
5. Common English words MUST stay in English: why, is, talking, have, do, what, where, when, how, etc.
6. If you're unsure whether a word is Hindi or English, keep it in English
7. Make it sound natural, like how people actually speak Hinglish in conversations`

const genericRules = `Translate the following subtitle texts to %s.

CRITICAL RULES:
1. Translate meaning, keep names and numbers unchanged
2. Keep each subtitle short enough to read on screen
3. Do NOT merge, split, reorder, or drop subtitles`

// buildUserPrompt wraps the encoded batch in the instructions for target.
func buildUserPrompt(target language.Tag, texts []string) string {
	var b strings.Builder
	b.WriteString("DO NOT use internet search. Use only your internal knowledge for this translation task.\n\n")

	// Numbering continues after the target-specific rules.
	n := 8
	base, _ := target.Base()
	if base.String() == "hi" {
		b.WriteString(hinglishRules)
	} else {
		b.WriteString(fmt.Sprintf(genericRules, languageName(target)))
		n = 4
	}

	b.WriteString("\n")
	for _, rule := range []string{
		"Preserve the numbering [1], [2], etc. for each subtitle",
		"Separate each translated subtitle with " + subtitle.SegmentDelimiter,
		"ONLY return the translated texts with their numbers, nothing else",
	} {
		b.WriteString(fmt.Sprintf("%d. %s\n", n, rule))
		n++
	}

	b.WriteString("\nSubtitles to convert:\n")
	b.WriteString(subtitle.EncodeBatch(texts))
	return b.String()
}

func languageName(tag language.Tag) string {
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
