package subtitle

import "strings"

// Reconstruct renders blocks back into a caption document for the dialect.
// Header blocks are dropped for SRT. Output uses LF line endings.
func Reconstruct(blocks []Block, dialect Dialect) string {
	parts := make([]string, 0, len(blocks))
	header := ""
	hasHeader := false

	for _, b := range blocks {
		switch b.Kind {
		case KindHeader:
			if dialect != DialectVTT {
				continue
			}
			if !hasHeader {
				header = b.Content
				hasHeader = true
			}
			parts = append(parts, b.Content)
		case KindCue:
			if b.Cue == nil {
				parts = append(parts, b.Content)
				continue
			}
			parts = append(parts, renderCue(*b.Cue))
		case KindRaw:
			parts = append(parts, b.Content)
		default:
			parts = append(parts, b.Content)
		}
	}

	out := strings.Join(parts, blockSeparator)
	if hasHeader && !strings.HasPrefix(out, header) {
		out = header + blockSeparator + out
	}
	return out
}

func renderCue(c Cue) string {
	var sb strings.Builder
	if c.HasSequence {
		sb.WriteString(c.Sequence)
		sb.WriteByte('\n')
	}
	sb.WriteString(c.Timing)
	sb.WriteByte('\n')
	sb.WriteString(c.Text)
	sb.WriteString(c.Trailer)
	return sb.String()
}
