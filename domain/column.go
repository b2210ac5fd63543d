package domain

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxKeyLength   = 40
	fallbackKey    = "column"
	maxKeyAttempts = 5
)

// Column is one ordered stage of an owner's board.
type Column struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Label    string `json:"label"`
	Position int    `json:"position"`
	OwnerID  string `json:"-"`
	ETag     string `json:"-"`
}

// DefaultColumns are seeded for new boards, in board order.
var DefaultColumns = []Column{
	{Key: "todo", Label: "To Do"},
	{Key: "in-progress", Label: "In Progress"},
	{Key: "done", Label: "Done"},
}

// normalize lower-cases s, collapses runs of non-alphanumerics to a single
// hyphen and trims edge hyphens.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

func compact(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

// Slugify derives a column key from a display label.
func Slugify(label string) string {
	key := normalize(label)
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
	}
	if key == "" {
		return fallbackKey
	}
	return key
}

// EnsureUniqueKey returns base, or base suffixed with -2, -3, ... until it
// does not collide with an existing column key.
func EnsureUniqueKey(base string, existing []Column) string {
	taken := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		taken[c.Key] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// statusProbe carries the precomputed forms of a requested status.
type statusProbe struct {
	raw        string
	normalized string
	compact    string
}

type statusMatcher func(c Column, p statusProbe) bool

// statusMatchers are tried in order; the first tier with a hit wins.
var statusMatchers = []statusMatcher{
	func(c Column, p statusProbe) bool { return c.Key == p.raw },
	func(c Column, p statusProbe) bool { return strings.EqualFold(c.Label, p.raw) },
	func(c Column, p statusProbe) bool {
		return p.normalized != "" && (c.Key == p.normalized || normalize(c.Label) == p.normalized)
	},
	func(c Column, p statusProbe) bool {
		if p.compact == "" {
			return false
		}
		return compact(c.Key) == p.compact || compact(normalize(c.Label)) == p.compact
	},
}

// ResolveStatus maps a loose status value (key or label, any case or
// separator) to one of the given columns. An empty value selects the first
// column.
func ResolveStatus(columns []Column, desired string) (Column, bool) {
	if len(columns) == 0 {
		return Column{}, false
	}
	desired = strings.TrimSpace(desired)
	if desired == "" {
		return columns[0], true
	}
	norm := normalize(desired)
	probe := statusProbe{raw: desired, normalized: norm, compact: compact(norm)}
	for _, match := range statusMatchers {
		for _, c := range columns {
			if match(c, probe) {
				return c, true
			}
		}
	}
	return Column{}, false
}

// ResolveStatusKey is ResolveStatus reduced to the column key.
func ResolveStatusKey(columns []Column, desired string) (string, bool) {
	c, ok := ResolveStatus(columns, desired)
	return c.Key, ok
}

// findColumn locates a column by exact key, then by case-insensitive label.
func findColumn(columns []Column, keyOrLabel string) (Column, int, bool) {
	for i, c := range columns {
		if c.Key == keyOrLabel {
			return c, i, true
		}
	}
	trimmed := strings.TrimSpace(keyOrLabel)
	for i, c := range columns {
		if strings.EqualFold(c.Label, trimmed) {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

func columnByKey(columns []Column, key string) (Column, bool) {
	for _, c := range columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// SortColumns orders columns by position, breaking ties by key.
func SortColumns(columns []Column) {
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i].Position != columns[j].Position {
			return columns[i].Position < columns[j].Position
		}
		return columns[i].Key < columns[j].Key
	})
}

func nextPosition(columns []Column) int {
	next := 0
	for _, c := range columns {
		if c.Position >= next {
			next = c.Position + 1
		}
	}
	return next
}
