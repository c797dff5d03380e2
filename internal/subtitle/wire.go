package subtitle

import (
	"fmt"
	"regexp"
	"strings"
)

// SegmentDelimiter separates numbered segments in a translator batch.
const SegmentDelimiter = "---SUBTITLE---"

var (
	segmentTag = regexp.MustCompile(`(?m)^\[\d+\][ \t]*`)
	blankLine  = regexp.MustCompile(`\n[ \t]*\n`)
)

// EncodeBatch tags each text with its 1-based index and joins them with the
// segment delimiter on its own line.
func EncodeBatch(texts []string) string {
	parts := make([]string, len(texts))
	for i, text := range texts {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, text)
	}
	return strings.Join(parts, "\n"+SegmentDelimiter+"\n")
}

// DecodeBatch splits a translator response on the segment delimiter, drops
// empty segments and strips the index tags. Anything in a segment before its
// first tag line is filler and is discarded, as is anything after the first
// blank line of the last tagged segment. Cue text never contains a blank line.
func DecodeBatch(response string) []string {
	ret := make([]string, 0)
	parts := strings.Split(Normalize(response), SegmentDelimiter)
	last := len(parts) - 1
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if loc := segmentTag.FindStringIndex(part); loc != nil {
			part = part[loc[1]:]
			if i == last {
				if end := blankLine.FindStringIndex(part); end != nil {
					part = part[:end[0]]
				}
			}
		}
		ret = append(ret, strings.TrimSpace(part))
	}
	return ret
}
