// Package alerts derives dietary-alert labels from transcribed order text.
//
// Scanning is a pure function over a declarative table of
// label -> keyword list, so the whole behavior is testable as data.
package alerts

import (
	"sort"
	"strings"
)

// DefaultTable maps alert labels to the phrases that trigger them.
// Matching is case-insensitive substring search.
var DefaultTable = map[string][]string{
	"gluten-free": {
		"gluten free", "gluten-free", "no gluten", "celiac", "coeliac",
	},
	"nut-allergy": {
		"nut allergy", "nut-allergy", "no nuts", "nut free", "nut-free",
		"peanut", "tree nut",
	},
	"dairy-free": {
		"dairy free", "dairy-free", "no dairy", "lactose",
		"no cheese", "no milk",
	},
	"shellfish-allergy": {
		"shellfish", "no shrimp", "no prawns", "crab allergy",
	},
	"vegetarian": {
		"vegetarian", "no meat", "meatless",
	},
	"vegan": {
		"vegan", "plant based", "plant-based",
	},
	"diabetic": {
		"diabetic", "sugar free", "sugar-free", "no sugar",
	},
	"low-sodium": {
		"low sodium", "low-sodium", "no salt", "low salt",
	},
}

// Scanner matches text against a keyword table.
type Scanner struct {
	table map[string][]string
}

// NewScanner builds a scanner from the given table. A nil or empty table
// falls back to DefaultTable.
func NewScanner(table map[string][]string) *Scanner {
	if len(table) == 0 {
		table = DefaultTable
	}
	return &Scanner{table: table}
}

// Scan returns the sorted set of alert labels whose keywords appear in
// text. Empty text yields an empty set. Scan is deterministic and has no
// side effects.
func (s *Scanner) Scan(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	lower := strings.ToLower(text)

	var labels []string
	for label, keywords := range s.table {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				labels = append(labels, label)
				break
			}
		}
	}
	sort.Strings(labels)
	if labels == nil {
		return []string{}
	}
	return labels
}

// Scan matches text against DefaultTable.
func Scan(text string) []string {
	return NewScanner(nil).Scan(text)
}
