// Package dateparse resolves ambiguous textual dates into calendar dates
// with calibrated confidence. All functions are pure.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/docufill/constants"
)

// Confidence bands. An unambiguous parse scores high; a parse that leaned
// on a locale default scores explicitly lower, and a parse that only became
// valid after swapping day/month lower still.
const (
	confISO      = 98
	confTextual  = 97
	confForced   = 96 // one numeric component > 12 decides the order
	confSameBoth = 95 // day == month, both readings agree
	confAssumed  = 72 // locale default decided the order
	confSwapped  = 64 // assumed order was not a real date, swap was
)

// Resolved is a successfully parsed date.
type Resolved struct {
	ISO          string              `json:"iso8601_date"` // YYYY-MM-DD
	Display      string              `json:"display_string"`
	Confidence   int                 `json:"confidence"`
	AssumedOrder constants.DateOrder `json:"assumed_order,omitempty"`
}

var (
	reISO     = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
	reNumeric = regexp.MustCompile(`^(\d{1,2})[-/. ](\d{1,2})[-/. ](\d{2}|\d{4})$`)
)

var textualLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2006 January 2",
}

// Resolve parses raw into a calendar date using order as the tiebreak for
// ambiguous numeric dates. It returns nil when no reading of the input is a
// valid calendar date; it never guesses an invalid one.
func Resolve(raw string, order constants.DateOrder) *Resolved {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if m := reISO.FindStringSubmatch(s); m != nil {
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if !validDate(y, mo, d) {
			return nil
		}
		return resolved(y, mo, d, confISO, "")
	}

	for _, layout := range textualLayouts {
		if t, err := time.Parse(layout, normalizeTextual(s)); err == nil {
			return resolved(t.Year(), int(t.Month()), t.Day(), confTextual, "")
		}
	}

	if m := reNumeric.FindStringSubmatch(s); m != nil {
		return resolveNumeric(atoi(m[1]), atoi(m[2]), expandYear(m[3]), order)
	}

	return nil
}

func resolveNumeric(a, b, year int, order constants.DateOrder) *Resolved {
	switch {
	case a > 12 && b > 12:
		return nil
	case a > 12: // a can only be a day
		if !validDate(year, b, a) {
			return nil
		}
		return resolved(year, b, a, confForced, constants.DayFirst)
	case b > 12: // b can only be a day
		if !validDate(year, a, b) {
			return nil
		}
		return resolved(year, a, b, confForced, constants.MonthFirst)
	case a == b:
		if !validDate(year, a, b) {
			return nil
		}
		return resolved(year, a, b, confSameBoth, "")
	}

	// Ambiguous: both components could be the month. Fall back to the
	// category's locale default, at explicitly reduced confidence.
	if order == "" {
		order = constants.MonthFirst
	}
	day, month := a, b
	if order == constants.MonthFirst {
		day, month = b, a
	}
	if validDate(year, month, day) {
		return resolved(year, month, day, confAssumed, order)
	}
	// The assumed reading is not a real calendar date; try the swap.
	if validDate(year, day, month) {
		return resolved(year, day, month, confSwapped, swap(order))
	}
	return nil
}

func resolved(y, m, d, conf int, order constants.DateOrder) *Resolved {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &Resolved{
		ISO:          t.Format("2006-01-02"),
		Display:      t.Format("02 Jan 2006"),
		Confidence:   conf,
		AssumedOrder: order,
	}
}

func validDate(y, m, d int) bool {
	if y < 1 || m < 1 || m > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}

func swap(o constants.DateOrder) constants.DateOrder {
	if o == constants.DayFirst {
		return constants.MonthFirst
	}
	return constants.DayFirst
}

// expandYear widens two-digit years: 50-99 -> 19xx, 00-49 -> 20xx.
func expandYear(s string) int {
	y := atoi(s)
	if len(s) == 4 {
		return y
	}
	if y >= 50 {
		return 1900 + y
	}
	return 2000 + y
}

func normalizeTextual(s string) string {
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// LooksLikeDate reports whether raw resembles a date at all. The extractor
// uses it to route candidate substrings to Resolve.
func LooksLikeDate(raw string) bool {
	s := strings.TrimSpace(raw)
	if reISO.MatchString(s) || reNumeric.MatchString(s) {
		return true
	}
	for _, layout := range textualLayouts {
		if _, err := time.Parse(layout, normalizeTextual(s)); err == nil {
			return true
		}
	}
	return false
}
