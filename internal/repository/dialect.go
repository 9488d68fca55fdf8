package repository

import (
	"strconv"
	"strings"
)

// dialect captures the SQL differences between the supported database/sql backends.
type dialect struct {
	name       string
	driver     string
	numbered   bool // $1, $2 placeholders instead of ?
	insertStub string
	schema     []string
}

// rebind rewrites ? placeholders for drivers that use numbered parameters.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
