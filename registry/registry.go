// Package registry parses the channel registry, a spreadsheet exported as
// CSV, into normalized channel records.
//
// The parser is intentionally minimal: it splits rows on a single separator and
// does not understand quoted fields or escaped separators. A cell containing the
// separator inside quotes is split like any other.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultFallbackCategory is the main category of a channel without categories.
const DefaultFallbackCategory = "Other"

// ErrEmptyRegistry indicates the registry produced no usable channels.
var ErrEmptyRegistry = errors.New("registry: no channels")

// Channel is one registry row.
type Channel struct {
	// ID is a handle ("@name") or a canonical channel id ("UC...").
	ID string
	// Name is the display name from the registry.
	Name string
	// Categories holds the non-empty category labels in registry order.
	Categories []string
	// MainCategory is the first category, or the fallback when there is none.
	MainCategory string
}

var lineSplit = regexp.MustCompile(`\r?\n`)

// Parser turns registry text into channels.
type Parser struct {
	// Fallback is the main category for channels without categories.
	Fallback string
}

// Parse parses text with the default fallback category.
func Parse(text string) []Channel {
	return Parser{}.Parse(text)
}

// Parse returns the channels described by text. It returns an empty result,
// not an error, when there is no data row or no id column.
func (p Parser) Parse(text string) []Channel {
	channels, _ := p.parse(text)
	return channels
}

// ParseStrict is like Parse but reports why the result is empty. The returned
// error wraps ErrEmptyRegistry.
func (p Parser) ParseStrict(text string) ([]Channel, error) {
	channels, reason := p.parse(text)
	if len(channels) == 0 {
		if reason == "" {
			reason = "every row lacks an id"
		}
		return nil, fmt.Errorf("%w: %s", ErrEmptyRegistry, reason)
	}
	return channels, nil
}

func (p Parser) parse(text string) ([]Channel, string) {
	text = strings.TrimPrefix(text, "\uFEFF")

	var lines []string
	for _, line := range lineSplit.Split(text, -1) {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, "need a header and at least one row"
	}

	sep := DetectSeparator(lines[0])
	idIdx, nameIdx, catIdx := -1, -1, -1
	for i, h := range strings.Split(lines[0], sep) {
		// First match wins for duplicated headers.
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			if idIdx < 0 {
				idIdx = i
			}
		case "name":
			if nameIdx < 0 {
				nameIdx = i
			}
		case "category":
			if catIdx < 0 {
				catIdx = i
			}
		}
	}
	if idIdx < 0 {
		return nil, "missing id column"
	}

	fallback := p.Fallback
	if fallback == "" {
		fallback = DefaultFallbackCategory
	}

	channels := make([]Channel, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := strings.Split(line, sep)
		id := cell(values, idIdx)
		if id == "" {
			continue
		}
		categories := SplitCategories(cell(values, catIdx))
		channels = append(channels, Channel{
			ID:           id,
			Name:         cell(values, nameIdx),
			Categories:   categories,
			MainCategory: MainCategory(categories, fallback),
		})
	}
	return channels, ""
}

// DetectSeparator returns ";" when the header has more ";"-delimited fields
// than ","-delimited ones, and "," otherwise.
func DetectSeparator(header string) string {
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ";"
	}
	return ","
}

// cell returns the trimmed value at idx, or "" when the row is too short.
func cell(values []string, idx int) string {
	if idx < 0 || idx >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[idx])
}

// Dedupe collapses channels sharing an id. The last row wins, at the position
// of the first occurrence.
func Dedupe(channels []Channel) []Channel {
	pos := make(map[string]int, len(channels))
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

// CategoryMap maps channel id to categories. Later rows overwrite earlier ones.
func CategoryMap(channels []Channel) map[string][]string {
	m := make(map[string][]string, len(channels))
	for _, c := range channels {
		m[c.ID] = c.Categories
	}
	return m
}
