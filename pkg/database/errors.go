package database

import "strings"

// IsUniqueViolation reports whether err is a uniqueness constraint
// violation. Matches lib/pq (code 23505) and SQLite message text so the
// same check works against both drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "23505")
}
