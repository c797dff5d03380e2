package subtitle

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Dialect selects one of the two supported timed-caption conventions.
type Dialect int

const (
	// DialectSRT has numbered cues and no preamble.
	DialectSRT Dialect = iota
	// DialectVTT has an optional WEBVTT preamble and unnumbered cues.
	DialectVTT
)

func (d Dialect) String() string {
	switch d {
	case DialectSRT:
		return "srt"
	case DialectVTT:
		return "vtt"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// ParseDialect accepts "srt" or "vtt" in any case, with or without a leading dot.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "srt":
		return DialectSRT, nil
	case "vtt", "webvtt":
		return DialectVTT, nil
	default:
		return 0, fmt.Errorf("unsupported caption format: %q", s)
	}
}

// DialectFromPath picks the dialect from a file extension.
func DialectFromPath(path string) (Dialect, error) {
	return ParseDialect(filepath.Ext(path))
}

// Kind discriminates the Block union.
type Kind int

const (
	KindRaw Kind = iota
	KindHeader
	KindCue
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindCue:
		return "cue"
	default:
		return "raw"
	}
}

// Block is one separator-delimited unit of a caption document.
//
// Content is set for KindHeader and KindRaw and holds the block verbatim.
// Cue is set only for KindCue.
type Block struct {
	Kind    Kind
	Content string
	Cue     *Cue
}

// Cue is a structured timed caption entry.
type Cue struct {
	// Sequence is the numbering line for SRT, or the optional cue identifier for VTT.
	Sequence    string
	HasSequence bool
	Timing      string
	Text        string
	// Trailer holds line breaks that closed the block after the text.
	Trailer string
}

func headerBlock(content string) Block {
	return Block{Kind: KindHeader, Content: content}
}

func rawBlock(content string) Block {
	return Block{Kind: KindRaw, Content: content}
}

func cueBlock(c Cue) Block {
	return Block{Kind: KindCue, Cue: &c}
}

// clone returns a deep copy so callers can rewrite cue text without aliasing.
func (b Block) clone() Block {
	if b.Cue == nil {
		return b
	}
	c := *b.Cue
	b.Cue = &c
	return b
}

// Cues returns the text of every cue block in document order.
func Cues(blocks []Block) []string {
	ret := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind == KindCue && b.Cue != nil {
			ret = append(ret, b.Cue.Text)
		}
	}
	return ret
}
