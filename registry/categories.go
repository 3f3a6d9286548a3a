package registry

import "strings"

// SplitCategories splits a category cell on ";" or ",", trims every piece and
// drops empty ones. Order is preserved; duplicates are kept.
func SplitCategories(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ','
	})
	categories := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			categories = append(categories, p)
		}
	}
	return categories
}

// MainCategory returns the first category, or fallback when there is none.
func MainCategory(categories []string, fallback string) string {
	if len(categories) > 0 {
		return categories[0]
	}
	return fallback
}
