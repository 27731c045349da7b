package database

import "strings"

// Rebind rewrites '?' placeholders into the driver's bind markers.
// Queries are written once with '?' and rebound for PostgreSQL. Question
// marks inside single-quoted literals are left alone.
func Rebind(driver Driver, query string) string {
	if driver.Placeholder(1) == "?" || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteString(driver.Placeholder(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
