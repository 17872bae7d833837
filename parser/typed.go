package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"paperlens-backend/models"
)

// Verdict is the outcome of the research-paper gate.
type Verdict struct {
	Research bool
	Reason   string
}

const defaultRejectReason = "not a research paper"

// Classification parses the gate answer: "RESEARCH" or "NON-RESEARCH: reason".
func Classification(resp string) (Verdict, error) {
	for _, line := range strings.Split(stripFences(resp), "\n") {
		line = strings.Trim(strings.TrimSpace(line), "*`\"'")
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		for _, prefix := range []string{"NON-RESEARCH", "NON RESEARCH", "NOT RESEARCH"} {
			if strings.HasPrefix(upper, prefix) {
				reason := strings.Trim(line[len(prefix):], ":-–*. ")
				if reason == "" {
					reason = defaultRejectReason
				}
				return Verdict{Research: false, Reason: reason}, nil
			}
		}
		if strings.HasPrefix(upper, "RESEARCH") {
			return Verdict{Research: true}, nil
		}
		return Verdict{}, ErrUnrecognized
	}
	return Verdict{}, ErrEmpty
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

type rawPaperInfo struct {
	Title   string          `json:"title"`
	Authors json.RawMessage `json:"authors"`
	Year    json.RawMessage `json:"year"`
	Venue   string          `json:"venue"`
}

// PaperInfo parses the bibliographic JSON object. Authors may be an array or
// a comma separated string; year may be a number, a string or null.
func PaperInfo(resp string) (models.PaperInfo, error) {
	var raw rawPaperInfo
	if err := JSONObject(resp, &raw); err != nil {
		return models.PaperInfo{}, err
	}
	info := models.PaperInfo{
		Title:   collapse(raw.Title),
		Authors: stringList(raw.Authors),
		Venue:   strings.TrimSpace(raw.Venue),
	}
	if m := yearPattern.FindString(string(raw.Year)); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			info.Year = &y
		}
	}
	return info, nil
}

type rawMethodology struct {
	Datasets json.RawMessage `json:"datasets"`
	Model    json.RawMessage `json:"model"`
	Metrics  json.RawMessage `json:"metrics"`
	Results  json.RawMessage `json:"results"`
	Summary  json.RawMessage `json:"summary"`
}

// Methodology parses the methodology JSON object. A response with no JSON
// but readable prose falls back to a summary-only value.
func Methodology(resp string) (models.Methodology, error) {
	var raw rawMethodology
	if err := JSONObject(resp, &raw); err != nil {
		summary, perr := Paragraph(resp)
		if perr != nil {
			return models.Methodology{}, perr
		}
		return models.Methodology{Summary: summary}, nil
	}
	return models.Methodology{
		Datasets: stringList(raw.Datasets),
		Model:    joined(raw.Model),
		Metrics:  stringList(raw.Metrics),
		Results:  joined(raw.Results),
		Summary:  joined(raw.Summary),
	}, nil
}

// stringList accepts a JSON array of strings or one delimited string.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return dedupe(list)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return dedupe(strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }))
	}
	return nil
}

// joined accepts a JSON string or array and returns one string.
func joined(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return collapse(s)
	}
	return strings.Join(stringList(raw), ", ")
}
