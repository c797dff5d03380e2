package file

import (
	"path/filepath"
	"strings"
)

// WithLanguageTag inserts tag before the extension: clip.srt becomes
// clip.hi.srt. A path without an extension gets the tag appended, and a path
// already carrying the tag is returned unchanged.
func WithLanguageTag(path, tag string) string {
	tag = strings.Trim(tag, ".")
	if path == "" || tag == "" {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == filepath.Base(path) {
		base, ext = path, ""
	}
	if strings.EqualFold(filepath.Ext(base), "."+tag) {
		return path
	}
	return base + "." + tag + ext
}
