package extract

import (
	"regexp"
	"strings"
	"sync"

	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// Rule-pass confidence. Labeled-line matches are structurally unambiguous
// but still OCR-derived, so they do not claim certainty.
const ruleConfidence = 88

var (
	labelRegexMu sync.Mutex
	labelRegexes = map[string]*regexp.Regexp{}
)

// ExtractByRules runs the pattern pass: for every candidate field of the
// category schema it looks for a "Label: value" line under the field's name
// or any of its aliases. Fields whose spec declares a Pattern are kept only
// when the captured value matches it; a wrong-shaped match is dropped rather
// than reported with confident-looking garbage.
func ExtractByRules(text string, cs schema.CategorySchema) map[string]entity.ExtractedField {
	out := make(map[string]entity.ExtractedField)
	if strings.TrimSpace(text) == "" {
		return out
	}

	for _, spec := range cs.Fields {
		labels := append([]string{spec.Name}, spec.Aliases...)
		for _, label := range labels {
			raw, value, ok := matchLabeledLine(text, label)
			if !ok {
				continue
			}
			if spec.Pattern != "" && !regexp.MustCompile(spec.Pattern).MatchString(value) {
				continue
			}
			out[spec.Name] = entity.ExtractedField{
				Value:      value,
				Confidence: ruleConfidence,
				Source:     entity.SourceRuleMatched,
				RawText:    raw,
			}
			break
		}
	}
	return out
}

// matchLabeledLine finds "label : value" (case-insensitive, separators
// normalized) and returns the whole matched line plus the trimmed value.
func matchLabeledLine(text, label string) (raw, value string, ok bool) {
	re := labelRegex(label)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	value = strings.TrimSpace(m[1])
	if value == "" {
		return "", "", false
	}
	return strings.TrimSpace(m[0]), value, true
}

func labelRegex(label string) *regexp.Regexp {
	labelRegexMu.Lock()
	defer labelRegexMu.Unlock()
	if re, ok := labelRegexes[label]; ok {
		return re
	}
	// "date_of_birth" matches "Date of Birth", "DATE-OF-BIRTH", etc.
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?im)^[^\S\n]*` + strings.Join(words, `[\s_-]+`) + `[^\S\n]*[:#][^\S\n]*(.+)$`
	re := regexp.MustCompile(pattern)
	labelRegexes[label] = re
	return re
}
