package utils

import (
	"unicode/utf8"

	"github.com/bytedance/gopkg/lang/fastrand"
)

// RandomID returns a positive id for platforms that deduplicate sends by a
// client-chosen random number.
func RandomID() int32 {
	return fastrand.Int31() | 1
}

// Truncate cuts content to at most maxLen bytes without splitting a rune.
func Truncate(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// Truncate80 shortens message text for log lines.
func Truncate80(content string) string {
	return Truncate(content, 80)
}
