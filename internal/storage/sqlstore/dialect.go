package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the few places where SQL backends differ.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
	// LockRow is appended to SELECTs that precede a read-modify-write of an
	// owner row. Empty when the backend serializes writers itself.
	LockRow string
}

var (
	Postgres = Dialect{Name: "postgres", Numbered: true, LockRow: " FOR UPDATE"}
	SQLite   = Dialect{Name: "sqlite"}
)

// rebind rewrites "?" placeholders for the dialect.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
