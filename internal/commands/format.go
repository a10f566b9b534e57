package commands

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// displayTimeLayout renders millisecond epochs the way the console shows them.
const displayTimeLayout = "2006-01-02T15:04:05.000Z"

// title upper-cases the first letter and lower-cases the rest. Casers keep
// state, so one is built per call.
func title(s string) string {
	return cases.Title(language.Und).String(s)
}

// asList treats a single object as a one-element list.
func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// field returns m[key] rendered as a string, "" when absent or null.
func field(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return cellText(v)
}

// splitWords breaks camelCase, PascalCase and snake_case keys into words.
// Acronyms stay together: "computerIPAddress" -> computer, IP, Address.
func splitWords(s string) []string {
	var (
		words []string
		cur   []rune
	)
	runes := []rune(s)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if r == '_' || r == ' ' || r == '-' {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// pascalKey turns an API key into the context form: "alertCount" ->
// "AlertCount", "id" -> "ID".
func pascalKey(k string) string {
	var b strings.Builder
	for _, w := range splitWords(k) {
		b.WriteString(title(w))
	}
	out := b.String()
	if out == "Id" {
		return "ID"
	}
	return out
}

// camelKey turns snake_case into lowerCamelCase and leaves other keys alone.
func camelKey(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}
	parts := strings.Split(k, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(title(p))
	}
	return b.String()
}

// headerLabel is the table header for a key: "processTableId" ->
// "Process Table Id".
func headerLabel(k string) string {
	words := splitWords(k)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// formatContext applies pascalKey to the top-level keys of an object or of
// every object in a list.
func formatContext(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, formatContext(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[pascalKey(k)] = val
		}
		return out
	}
	return v
}

// buildContext drops empty top-level values and renames keys with transform
// (nil keeps them).
func buildContext(v any, transform func(string) string) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, buildContext(item, transform))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isEmpty(val) {
				continue
			}
			if transform != nil {
				k = transform(k)
			}
			out[k] = val
		}
		return out
	}
	return v
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// msToDate renders a millisecond epoch; ok is false when v is not numeric.
func msToDate(v any) (string, bool) {
	var ms int64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return "", false
			}
			n = int64(f)
		}
		ms = n
	case float64:
		ms = int64(t)
	case int64:
		ms = t
	case int:
		ms = int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return "", false
		}
		ms = n
	default:
		return "", false
	}
	return time.UnixMilli(ms).UTC().Format(displayTimeLayout), true
}

// convertTimestamps rewrites the named keys of m from epoch millis to dates.
func convertTimestamps(m map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := m[k]; ok && !isEmpty(v) {
			if s, ok := msToDate(v); ok {
				m[k] = s
			}
		}
	}
}

// paginate slices items client side, clamping both ends.
func paginate(items []any, offset, limit int) []any {
	from := min(max(offset, 0), len(items))
	to := min(from+max(limit, 0), len(items))
	return items[from:to]
}

// cellText renders a value for a table cell.
func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, cellText(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// sortedKeys returns the keys of m in a stable order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// keysOf collects the union of keys over rows, sorted.
func keysOf(rows []any) []string {
	var keys []string
	for _, r := range rows {
		for _, k := range sortedKeys(asMap(r)) {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
