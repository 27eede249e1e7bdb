package recognize

import (
	"regexp"
	"strings"
)

var (
	reDateish = regexp.MustCompile(`\b\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}\b`)
	reLabel   = regexp.MustCompile(`(?m)^[A-Za-z][A-Za-z /]{2,30}:\s*\S`)
	reIDish   = regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b|\b\d{8,12}\b`)
	reMRZ     = regexp.MustCompile(`(?m)^[A-Z0-9<]{30,44}$`)
)

// estimateConfidence is a heuristic estimate (0-100) of how usable the
// recognized text is for identity-document extraction. It is deliberately
// conservative: backends that report their own uncertainty override it.
func estimateConfidence(txt string) int {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	score := 20 // base
	if reDateish.MatchString(txt) {
		score += 20
	}
	if reLabel.MatchString(txt) {
		score += 20
	}
	if reIDish.MatchString(txt) {
		score += 15
	}
	if reMRZ.MatchString(txt) {
		score += 15
	}
	if len(txt) > 120 { // enough content
		score += 10
	}
	if score > 90 {
		score = 90 // a heuristic never claims certainty
	}
	return score
}
