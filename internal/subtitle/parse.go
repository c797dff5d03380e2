package subtitle

import (
	"strings"
)

const (
	blockSeparator = "\n\n"
	timingArrow    = "-->"
	vttSignature   = "WEBVTT"
)

// Normalize converts CRLF and bare CR line endings to LF.
func Normalize(document string) string {
	s := strings.ReplaceAll(document, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Parse splits a caption document into blocks. It never fails: anything that
// does not look like a cue for the given dialect is kept as a raw block.
func Parse(document string, dialect Dialect) []Block {
	doc := Normalize(document)
	if doc == "" {
		return nil
	}

	parts := strings.Split(doc, blockSeparator)
	blocks := make([]Block, 0, len(parts))
	for i, part := range parts {
		if i == 0 && dialect == DialectVTT && isVTTHeader(part) {
			blocks = append(blocks, headerBlock(part))
			continue
		}
		blocks = append(blocks, classify(part, dialect))
	}
	return blocks
}

func isVTTHeader(block string) bool {
	trimmed := strings.TrimPrefix(strings.TrimSpace(block), "\ufeff")
	return strings.HasPrefix(trimmed, vttSignature)
}

// classify turns one block into a cue when its timing line is where the
// dialect expects it, and into a raw block otherwise.
func classify(block string, dialect Dialect) Block {
	body := strings.TrimRight(block, "\n")
	trailer := block[len(body):]
	lines := strings.Split(body, "\n")

	timingIdx, ok := timingLineIndex(lines, dialect)
	if !ok || len(lines) < timingIdx+2 {
		return rawBlock(block)
	}

	cue := Cue{
		Timing:  lines[timingIdx],
		Text:    strings.Join(lines[timingIdx+1:], "\n"),
		Trailer: trailer,
	}
	if timingIdx == 1 {
		cue.Sequence = lines[0]
		cue.HasSequence = true
	}
	return cueBlock(cue)
}

func timingLineIndex(lines []string, dialect Dialect) (int, bool) {
	switch dialect {
	case DialectSRT:
		if len(lines) > 1 && strings.Contains(lines[1], timingArrow) {
			return 1, true
		}
		return 0, false
	case DialectVTT:
		if strings.Contains(lines[0], timingArrow) {
			return 0, true
		}
		// A VTT cue may carry an identifier line before its timing line.
		if len(lines) > 1 &&
			strings.Contains(lines[1], timingArrow) &&
			strings.TrimSpace(lines[0]) != "" &&
			!isVTTMetadata(lines[0]) {
			return 1, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func isVTTMetadata(line string) bool {
	for _, prefix := range []string{"NOTE", "STYLE", "REGION"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
