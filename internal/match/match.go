// Package match implements the keyword predicate used to filter papers
// against research-field interests.
package match

import "strings"

// Matches reports whether any keyword occurs as a case-insensitive substring
// of text. An empty keyword set means no filter is configured and matches
// everything.
func Matches(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	haystack := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// PaperText concatenates the searchable fields of a paper into one haystack.
func PaperText(title, abstract, keywords string) string {
	return title + " " + abstract + " " + keywords
}
