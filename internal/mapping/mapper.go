// Package mapping assigns extracted document fields onto the field set of an
// arbitrary target form through four matching tiers: exact, alias, fuzzy,
// unmatched. The fuzzy tier is deliberately conservative: an unmapped field
// is always preferable to a wrong but confident-looking match.
package mapping

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// Config holds mapping policy.
type Config struct {
	// FuzzyThreshold is the minimum name similarity for a fuzzy match.
	// Loose values produce trust-breaking false positives (employee_id vs
	// employer_id), so the default is strict.
	FuzzyThreshold float64
}

// DefaultFuzzyThreshold is conservative on purpose; tune against a labeled
// validation set before loosening it.
const DefaultFuzzyThreshold = 0.85

// Confidence scaling per tier.
const (
	exactScale = 1.0
	aliasScale = 0.95
	fuzzyScale = 0.7
)

// Result is the full mapping outcome, including what could NOT be mapped.
type Result struct {
	Assignments     []entity.MappingAssignment
	Mapped          map[string]entity.ExtractedField
	UnmappedSources []string
	UnmappedTargets []string
}

// Mapper maps extracted fields onto a target schema.
type Mapper struct {
	cfg    Config
	logger *slog.Logger
}

func NewMapper(cfg Config, logger *slog.Logger) *Mapper {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{cfg: cfg, logger: logger}
}

// Map applies the four tiers in order, each tier consuming only the fields
// not yet matched. cs supplies the per-category alias table.
func (m *Mapper) Map(fields map[string]entity.ExtractedField, target schema.TargetSchema, cs schema.CategorySchema) Result {
	res := Result{Mapped: make(map[string]entity.ExtractedField)}

	sources := sortedNames(fields)
	remainingTargets := make([]schema.TargetField, len(target))
	copy(remainingTargets, target)

	assign := func(tf schema.TargetField, src string, tier entity.MatchTier, similarity float64) {
		f := fields[src]
		conf := scaleConfidence(f.Confidence, tier, similarity)
		res.Assignments = append(res.Assignments, entity.MappingAssignment{
			TargetField: tf.Name,
			SourceField: src,
			Value:       f.Value,
			Confidence:  conf,
			Tier:        tier,
		})
		mapped := f
		mapped.Confidence = conf
		res.Mapped[tf.Name] = mapped
		sources = remove(sources, src)
		remainingTargets = removeTarget(remainingTargets, tf.Name)
	}

	// Tier 1: exact name match (case-insensitive, whitespace-normalized).
	// When several sources claim one target within a tier, the
	// higher-confidence extraction wins; name order only breaks exact ties.
	for _, tf := range append([]schema.TargetField(nil), remainingTargets...) {
		src := bestByConfidence(sources, fields, func(s string) bool {
			return normalizeName(s) == normalizeName(tf.Name)
		})
		if src != "" {
			assign(tf, src, entity.TierExact, 1)
		}
	}

	// Tier 2: curated alias table. A target matches a source when both
	// normalize into the same canonical schema field.
	for _, tf := range append([]schema.TargetField(nil), remainingTargets...) {
		if src, ok := aliasMatch(tf.Name, sources, fields, cs); ok {
			assign(tf, src, entity.TierAlias, 1)
		}
	}

	// Tier 3: fuzzy similarity above the conservative threshold, and only
	// between type-compatible fields.
	for _, tf := range append([]schema.TargetField(nil), remainingTargets...) {
		src, sim := bestFuzzy(tf, sources, fields, cs, m.cfg.FuzzyThreshold)
		if src != "" {
			assign(tf, src, entity.TierFuzzy, sim)
		}
	}

	// Tier 4: report everything left over; nothing is silently dropped.
	res.UnmappedSources = sources
	for _, tf := range remainingTargets {
		res.UnmappedTargets = append(res.UnmappedTargets, tf.Name)
		res.Assignments = append(res.Assignments, entity.MappingAssignment{
			TargetField: tf.Name,
			Tier:        entity.TierUnmatched,
		})
	}

	m.logger.Debug("mapping.done",
		"assignments", len(res.Assignments),
		"unmapped_sources", len(res.UnmappedSources),
		"unmapped_targets", len(res.UnmappedTargets),
	)
	return res
}

// aliasMatch resolves tf and each source through the category alias table
// and matches them when they share a canonical name.
func aliasMatch(targetName string, sources []string, fields map[string]entity.ExtractedField, cs schema.CategorySchema) (string, bool) {
	canonTarget, ok := canonicalName(targetName, cs)
	if !ok {
		return "", false
	}
	src := bestByConfidence(sources, fields, func(s string) bool {
		canonSrc, ok := canonicalName(s, cs)
		return ok && canonSrc == canonTarget
	})
	return src, src != ""
}

// bestByConfidence picks the matching source with the highest extraction
// confidence. Sources arrive sorted, so equal confidence resolves by name.
func bestByConfidence(sources []string, fields map[string]entity.ExtractedField, match func(string) bool) string {
	best := ""
	for _, src := range sources {
		if !match(src) {
			continue
		}
		if best == "" || fields[src].Confidence > fields[best].Confidence {
			best = src
		}
	}
	return best
}

// canonicalName maps a free-form field name onto a schema field via its
// name or alias list.
func canonicalName(name string, cs schema.CategorySchema) (string, bool) {
	n := normalizeName(name)
	for _, spec := range cs.Fields {
		if normalizeName(spec.Name) == n {
			return spec.Name, true
		}
		for _, alias := range spec.Aliases {
			if normalizeName(alias) == n {
				return spec.Name, true
			}
		}
	}
	return "", false
}

// bestFuzzy picks the highest-similarity source above the threshold. Equal
// similarity resolves by extraction confidence; sub-threshold candidates
// stay unmapped.
func bestFuzzy(tf schema.TargetField, sources []string, fields map[string]entity.ExtractedField, cs schema.CategorySchema, threshold float64) (string, float64) {
	best, bestSim := "", 0.0
	for _, src := range sources {
		if !typesCompatible(tf, src, cs) {
			continue
		}
		sim := levenshtein.Similarity(normalizeName(tf.Name), normalizeName(src), nil)
		if sim < threshold {
			continue
		}
		if sim > bestSim || (sim == bestSim && fields[src].Confidence > fields[best].Confidence) {
			best, bestSim = src, sim
		}
	}
	return best, bestSim
}

// typesCompatible blocks fuzzy matches between incompatible field types;
// name similarity alone is not enough evidence.
func typesCompatible(tf schema.TargetField, src string, cs schema.CategorySchema) bool {
	spec, ok := cs.Field(src)
	if !ok || tf.Type == "" || spec.Type == "" {
		return true // unknown types cannot veto
	}
	if tf.Type == spec.Type {
		return true
	}
	compatible := map[[2]schema.FieldType]bool{
		{schema.TypeText, schema.TypeEmail}:  true,
		{schema.TypeText, schema.TypePhone}:  true,
		{schema.TypeText, schema.TypeChoice}: true,
		{schema.TypeText, schema.TypeNumber}: true,
	}
	a, b := tf.Type, spec.Type
	return compatible[[2]schema.FieldType{a, b}] || compatible[[2]schema.FieldType{b, a}]
}

func scaleConfidence(confidence int, tier entity.MatchTier, similarity float64) int {
	var scaled float64
	switch tier {
	case entity.TierExact:
		scaled = float64(confidence) * exactScale
	case entity.TierAlias:
		scaled = float64(confidence) * aliasScale
	case entity.TierFuzzy:
		scaled = float64(confidence) * fuzzyScale * similarity
	default:
		return 0
	}
	return int(scaled + 0.5)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

func sortedNames(m map[string]entity.ExtractedField) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func remove(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func removeTarget(ts []schema.TargetField, name string) []schema.TargetField {
	out := ts[:0]
	for _, t := range ts {
		if t.Name != name {
			out = append(out, t)
		}
	}
	return out
}

// Describe renders a short human-readable mapping summary for logs and
// review reasons.
func Describe(res Result) string {
	return fmt.Sprintf("%d assigned, %d sources unmapped, %d targets unmapped",
		len(res.Assignments)-len(res.UnmappedTargets), len(res.UnmappedSources), len(res.UnmappedTargets))
}
