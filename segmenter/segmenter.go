// Package segmenter splits extracted paper text into named sections.
//
// Headings are recognised line by line: a line qualifies when it is short,
// carries no terminal punctuation, matches the section vocabulary once an
// optional "3." or "IV." prefix is removed, and is capitalised. Text between
// two headings belongs to the first one. Text before the first heading becomes
// the "preamble" section. When nothing qualifies, the whole input is returned
// as a single "full_text" section.
package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"paperlens-backend/models"
)

const (
	// Preamble holds the title and author block before the first heading.
	Preamble = "preamble"
	// FullText is the only section when no heading is recognised.
	FullText = "full_text"

	maxHeadingLen = 80

	vocabularyScore     = 0.6
	capitalizationScore = 0.3
	numberingScore      = 0.1
	minConfidence       = 0.8
)

var numberingPrefix = regexp.MustCompile(`^(?:(?:\d+\.)*\d+\.?|[IVX]+\.)\s+`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// vocabulary maps a normalised heading to its canonical section name.
var vocabulary = map[string]string{
	"abstract":                   "abstract",
	"introduction":               "introduction",
	"background":                 "background",
	"related work":               "related_work",
	"related works":              "related_work",
	"prior work":                 "related_work",
	"literature review":          "related_work",
	"preliminaries":              "preliminaries",
	"problem statement":          "problem_statement",
	"problem formulation":        "problem_statement",
	"problem definition":         "problem_statement",
	"methodology":                "methodology",
	"methods":                    "methodology",
	"method":                     "methodology",
	"materials and methods":      "methodology",
	"proposed method":            "methodology",
	"proposed approach":          "methodology",
	"our approach":               "methodology",
	"approach":                   "methodology",
	"analytical model":           "methodology",
	"system model":               "system_model",
	"architecture":               "architecture",
	"system architecture":        "architecture",
	"system design":              "architecture",
	"implementation":             "implementation",
	"implementation details":     "implementation",
	"experiments":                "experiments",
	"experiment":                 "experiments",
	"experimental setup":         "experiments",
	"experimental setups":        "experiments",
	"experimental design":        "experiments",
	"evaluation":                 "evaluation",
	"evaluation results":         "evaluation",
	"empirical evaluation":       "evaluation",
	"datasets":                   "datasets",
	"dataset":                    "datasets",
	"datasets and metrics":       "datasets",
	"results":                    "results",
	"experimental results":       "results",
	"results and discussion":     "results",
	"performance analysis":       "performance_analysis",
	"discussion":                 "discussion",
	"limitations":                "limitations",
	"conclusion":                 "conclusion",
	"conclusions":                "conclusion",
	"concluding remarks":         "conclusion",
	"conclusion and future work": "conclusion",
	"future work":                "future_work",
	"future directions":          "future_work",
	"summary":                    "summary",
	"acknowledgments":            "acknowledgments",
	"acknowledgements":           "acknowledgments",
	"acknowledgment":             "acknowledgments",
	"acknowledgement":            "acknowledgments",
	"references":                 "references",
	"bibliography":               "references",
	"appendix":                   "appendix",
	"appendices":                 "appendix",
	"supplementary material":     "appendix",
}

// Segment splits text into ordered sections. It never fails: empty input
// yields nil, unrecognised formatting yields one full_text section.
func Segment(text string) []models.Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var sections []models.Section
	var current *models.Section
	var body []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if current == nil {
			if content == "" {
				return
			}
			current = &models.Section{Name: Preamble}
		}
		current.Text = content
		current.OrderIndex = len(sections)
		sections = append(sections, *current)
		current = nil
	}

	headings := 0
	for _, line := range lines {
		if name, ok := MatchHeading(line); ok {
			flush()
			current = &models.Section{Name: name}
			headings++
			continue
		}
		body = append(body, line)
	}
	flush()

	if headings == 0 {
		return []models.Section{{Name: FullText, OrderIndex: 0, Text: text}}
	}
	return sections
}

// MatchHeading reports whether line is a section heading and returns the
// canonical section name.
func MatchHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxHeadingLen {
		return "", false
	}
	if strings.ContainsAny(trimmed[len(trimmed)-1:], ".,;?!") {
		return "", false
	}

	score := 0.0
	label := trimmed
	if loc := numberingPrefix.FindStringIndex(label); loc != nil {
		label = label[loc[1]:]
		score += numberingScore
	}
	label = strings.TrimSpace(strings.TrimSuffix(label, ":"))
	if label == "" {
		return "", false
	}

	name, ok := vocabulary[normalize(label)]
	if !ok {
		return "", false
	}
	score += vocabularyScore

	if isCapitalized(label) {
		score += capitalizationScore
	}
	if score < minConfidence {
		return "", false
	}
	return name, true
}

func normalize(label string) string {
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, "&", "and")
	return whitespaceRun.ReplaceAllString(label, " ")
}

// isCapitalized accepts Title Case, Sentence case and ALL CAPS labels.
func isCapitalized(label string) bool {
	first, _ := utf8.DecodeRuneInString(label)
	return unicode.IsUpper(first)
}
