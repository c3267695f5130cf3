package sqlstore

import (
	"strings"
	"unicode/utf8"
)

const responseBodyMaxBytes = 4 * 1024

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// truncateBody bounds stored response bodies; they exist for operator
// debugging, not for replay. The cut never splits a multi-byte rune.
func truncateBody(body string) string {
	if len(body) <= responseBodyMaxBytes {
		return body
	}
	cut := responseBodyMaxBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
