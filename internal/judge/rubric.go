package judge

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// ResolveCriterionScore finds the score a judge reported for one rubric
// criterion. Judges address criteria inconsistently — by id, by title, or by
// a positional "criterion_N" label — so lookup goes through normalized
// aliases. When no alias matches, fallback (typically the verdict's overall
// score) is used and matched is false.
func ResolveCriterionScore(criteria map[string]float64, criterion domain.RubricCriterion, ordinal int, fallback float64) (score float64, matched bool) {
	if len(criteria) == 0 {
		return domain.ClampScore01(fallback), false
	}

	normalized := make(map[string]float64, len(criteria))
	for key, value := range criteria {
		normalized[normalizeKey(key)] = value
	}

	for _, alias := range criterionAliases(criterion, ordinal) {
		if alias == "" {
			continue
		}
		if v, ok := normalized[alias]; ok {
			return domain.ClampScore01(v), true
		}
	}
	return domain.ClampScore01(fallback), false
}

func criterionAliases(criterion domain.RubricCriterion, ordinal int) []string {
	return []string{
		normalizeKey(criterion.ID),
		normalizeKey(criterion.Title),
		normalizeKey(fmt.Sprintf("criterion_%d", ordinal+1)),
	}
}

// normalizeKey lowercases and collapses every non-alphanumeric run to a
// single space so "Criterion-1", "criterion_1" and "Criterion 1" all agree.
func normalizeKey(text string) string {
	var sb strings.Builder
	inSep := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if inSep && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			inSep = false
			sb.WriteRune(r)
			continue
		}
		inSep = true
	}
	return sb.String()
}
