package subtitle

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage votes on the language of every cue text and returns the most
// frequent one, or language.Und when there are no cues.
func DetectLanguage(blocks []Block) language.Tag {
	texts := Cues(blocks)
	if len(texts) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, text := range texts {
		lang := whatlanggo.DetectLang(text).Iso6391()
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	return language.All.Make(topLang)
}
