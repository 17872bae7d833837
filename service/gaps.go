package service

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"paperlens-backend/models"
)

const (
	maxMissingCombinations = 20
	maxCommonLimitations   = 15
)

// MissingCombinations returns dataset/model pairs that appear across the
// given methodologies but are never evaluated together. Names compare
// case-insensitively; the first spelling seen is kept. Output is sorted.
func MissingCombinations(methods []models.Methodology, limit int) []models.MissingCombination {
	datasets := make(map[string]string)
	modelNames := make(map[string]string)
	existing := make(map[[2]string]bool)

	for _, m := range methods {
		model := strings.TrimSpace(m.Model)
		modelKey := strings.ToLower(model)
		if model != "" {
			if _, ok := modelNames[modelKey]; !ok {
				modelNames[modelKey] = model
			}
		}
		for _, d := range m.Datasets {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			key := strings.ToLower(d)
			if _, ok := datasets[key]; !ok {
				datasets[key] = d
			}
			if model != "" {
				existing[[2]string{key, modelKey}] = true
			}
		}
	}

	var missing []models.MissingCombination
	for dk, d := range datasets {
		for mk, m := range modelNames {
			if !existing[[2]string{dk, mk}] {
				missing = append(missing, models.MissingCombination{Dataset: d, Model: m})
			}
		}
	}
	slices.SortFunc(missing, func(a, b models.MissingCombination) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Dataset), strings.ToLower(b.Dataset)),
			cmp.Compare(strings.ToLower(a.Model), strings.ToLower(b.Model)),
		)
	})
	if limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}
	return missing
}

var wordPattern = regexp.MustCompile(`\w+`)

// CommonLimitations returns 4 to 6 word phrases from the results, metrics
// and summaries that recur in at least half of the papers (and at least two).
func CommonLimitations(methods []models.Methodology) []string {
	if len(methods) < 2 {
		return nil
	}
	counts := make(map[string]int)
	for _, m := range methods {
		text := strings.ToLower(strings.Join([]string{m.Results, strings.Join(m.Metrics, " "), m.Summary}, " "))
		words := wordPattern.FindAllString(text, -1)
		seen := make(map[string]bool)
		for n := 4; n <= 6; n++ {
			for i := 0; i+n <= len(words); i++ {
				phrase := strings.Join(words[i:i+n], " ")
				if len(phrase) > 15 && !seen[phrase] {
					seen[phrase] = true
					counts[phrase]++
				}
			}
		}
	}

	threshold := max(2, len(methods)/2)
	var common []string
	for phrase, c := range counts {
		if c >= threshold {
			common = append(common, phrase)
		}
	}
	slices.SortFunc(common, func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
	})
	if len(common) > maxCommonLimitations {
		common = common[:maxCommonLimitations]
	}
	return common
}
