package persistence

import "time"

// CaptionCacheEntry is a previously translated caption document.
type CaptionCacheEntry struct {
	CacheKey       string
	Dialect        string
	TargetLanguage string
	Translated     string
	ExpiresAt      time.Time
	UpdatedAt      time.Time
}
