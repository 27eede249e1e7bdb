package constants

import (
	"strings"
)

// Category is the document type classification. It selects the expected
// field schema and the locale defaults used for ambiguous dates.
type Category string

const (
	Passport        Category = "PASSPORT"
	NationalID      Category = "NATIONAL_ID"
	DriversLicense  Category = "DRIVERS_LICENSE"
	ResidencePermit Category = "RESIDENCE_PERMIT"
	Generic         Category = "GENERIC"
)

var allCategories = []Category{
	Passport,
	NationalID,
	DriversLicense,
	ResidencePermit,
	Generic,
}

func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-form category labels (hints from callers, model
// output) onto the canonical set. Unknown input falls back to Generic.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Generic, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("-", " ", "_", " ").Replace(normalized)

	// synonyms map
	synonyms := map[string]Category{
		"passport":         Passport,
		"travel document":  Passport,
		"id":               NationalID,
		"id card":          NationalID,
		"identity card":    NationalID,
		"national id":      NationalID,
		"national id card": NationalID,
		"license":          DriversLicense,
		"licence":          DriversLicense,
		"driver license":   DriversLicense,
		"drivers license":  DriversLicense,
		"driving licence":  DriversLicense,
		"residence permit": ResidencePermit,
		"visa":             ResidencePermit,
		"green card":       ResidencePermit,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		canon := strings.NewReplacer("_", " ").Replace(strings.ToLower(string(cat)))
		if normalized == canon {
			return cat, true
		}
	}

	return Generic, false
}

// DateOrder is the default day/month ordering assumed when a numeric date
// is ambiguous (both components <= 12).
type DateOrder string

const (
	DayFirst   DateOrder = "day-first"
	MonthFirst DateOrder = "month-first"
)

// DateOrderFor returns the default ordering for a document category.
// ICAO travel documents and most national ID formats print day first;
// Generic falls back to month-first.
func DateOrderFor(cat Category) DateOrder {
	switch cat {
	case Passport, NationalID, ResidencePermit:
		return DayFirst
	default:
		return MonthFirst
	}
}
