// Package parser reduces free-text LLM responses to typed values. Every
// function is pure and tries its arms in a fixed order, returning an error
// only when no arm applies.
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// MinLineLength is the shortest bullet kept by BulletList.
const MinLineLength = 12

var (
	ErrEmpty        = errors.New("empty response")
	ErrNoJSON       = errors.New("no JSON value found")
	ErrUnrecognized = errors.New("unrecognized response format")
)

var metaPatterns = compileAll(
	`^here (is|are) (the |your )?(\d+ )?(summary|bullet points?|key points?|points?|list|json)`,
	`^(i('ve| have) )?(summarized?|prepared|created|extracted)\b`,
	`^based on (the |these )?`,
	`^the (section|text|paper|following) (discusses?|presents?|describes?|contains?|outlines?|provides?)`,
	`^this (section|document|paper|text) (discusses?|presents?|describes?|contains?|provides?)`,
	`^in (this|the) section`,
	`^summary of (the )?`,
	`^bullet points?:`,
	`^key (points?|findings?):`,
	`^as requested`,
	`^following (is|are)`,
	`^below (is|are)`,
	`^sure[,!]`,
	`^certainly`,
	`^in summary`,
	`^overall,`,
	`^(tl;?dr|summary):?$`,
)

var (
	bulletPrefix = regexp.MustCompile(`^[ \t]*(?:[•*–—-]+[ \t]*|\d+[.)][ \t]+)+`)
	sentenceEnd  = regexp.MustCompile(`[.!?:]$`)
	fence        = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	whitespace   = regexp.MustCompile(`\s+`)
	noneFound    = regexp.MustCompile(`^(none( (mentioned|found|specified|stated|identified|reported))?|not (mentioned|specified|stated|reported|found)|n/?a|nothing (mentioned|found)|no [a-z]+( [a-z]+)? (is |are |were |was )?(mentioned|found|specified|stated|identified|reported))$`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func isMeta(line string) bool {
	lower := strings.ToLower(line)
	for _, re := range metaPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// stripBullet removes leading bullet and numbering markers.
func stripBullet(line string) string {
	return strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
}

// Lines returns the content lines of a response: wrapped lines are merged,
// preamble lines dropped and bullet markers removed.
func Lines(resp string) []string {
	var merged []string
	for _, raw := range strings.Split(resp, "\n") {
		line := strings.TrimSpace(raw)
		content := stripBullet(line)
		if content == "" {
			continue
		}
		startsBullet := content != line
		if n := len(merged); n > 0 && !startsBullet {
			last := merged[n-1]
			first := []rune(content)[0]
			if !sentenceEnd.MatchString(last) && (unicode.IsLower(first) || strings.HasSuffix(last, "-")) {
				if strings.HasSuffix(last, "-") {
					merged[n-1] = strings.TrimSuffix(last, "-") + content
				} else {
					merged[n-1] = last + " " + content
				}
				continue
			}
		}
		merged = append(merged, line)
	}

	var out []string
	for _, line := range merged {
		if isMeta(stripBullet(line)) {
			continue
		}
		if content := stripBullet(line); content != "" {
			out = append(out, content)
		}
	}
	return out
}

// BulletList parses a bullet-style answer. Arms: bullet lines of at least
// MinLineLength characters, then the whole response as a single item, then
// ErrEmpty.
func BulletList(resp string) ([]string, error) {
	var items []string
	for _, line := range Lines(stripFences(resp)) {
		if len([]rune(line)) >= MinLineLength {
			items = append(items, line)
		}
	}
	if len(items) > 0 {
		return items, nil
	}
	if paragraph := collapse(resp); paragraph != "" {
		return []string{paragraph}, nil
	}
	return nil, ErrEmpty
}

// Paragraph parses a prose answer into one paragraph without preamble.
func Paragraph(resp string) (string, error) {
	if text := strings.Join(Lines(stripFences(resp)), " "); strings.TrimSpace(text) != "" {
		return collapse(text), nil
	}
	if text := collapse(resp); text != "" {
		return text, nil
	}
	return "", ErrEmpty
}

// Markdown keeps the structure of a markdown report and drops leading preamble.
func Markdown(resp string) (string, error) {
	lines := strings.Split(stripFences(resp), "\n")
	start := 0
	for start < len(lines) {
		l := strings.TrimSpace(lines[start])
		if l != "" && !isMeta(l) {
			break
		}
		start++
	}
	text := strings.TrimSpace(strings.Join(lines[start:], "\n"))
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// IsNoneFound reports whether a short response says that nothing was found.
func IsNoneFound(resp string) bool {
	text := strings.TrimSpace(stripFences(resp))
	if text == "" || len(text) > 120 {
		return false
	}
	if text == "[]" {
		return true
	}
	text = strings.ToLower(stripBullet(text))
	text = strings.Trim(text, " .\"'`")
	return noneFound.MatchString(text)
}

// ItemList parses a list of names. Arms: the none-found sentinel, a JSON
// array (or an object wrapping one), bullet lines, a single delimited line.
// noneFound is true when the response explicitly found nothing.
func ItemList(resp string) (items []string, noneFound bool, err error) {
	if strings.TrimSpace(resp) == "" {
		return nil, false, ErrEmpty
	}
	if IsNoneFound(resp) {
		return nil, true, nil
	}

	if v, jerr := extractJSON(resp); jerr == nil {
		if list, ok := listFromJSON(v); ok {
			items = dedupe(list)
			return items, len(items) == 0, nil
		}
	}

	lines := Lines(stripFences(resp))
	if len(lines) == 1 && strings.ContainsAny(lines[0], ",;") {
		lines = strings.FieldsFunc(lines[0], func(r rune) bool { return r == ',' || r == ';' })
	}
	items = dedupe(lines)
	if len(items) == 0 {
		return nil, false, ErrUnrecognized
	}
	return items, false, nil
}

// dedupe trims items, drops none-found markers and repeats (case-insensitive).
func dedupe(list []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range list {
		item = strings.Trim(strings.TrimSpace(item), "\"'`")
		if item == "" || IsNoneFound(item) {
			continue
		}
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

var wrapperKeys = []string{"items", "datasets", "licenses", "data", "results"}

func listFromJSON(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, e := range t {
			switch x := e.(type) {
			case string:
				out = append(out, x)
			case map[string]any:
				if name, ok := x["name"].(string); ok {
					out = append(out, name)
				}
			}
		}
		return out, true
	case map[string]any:
		for _, k := range wrapperKeys {
			if inner, ok := t[k]; ok {
				return listFromJSON(inner)
			}
		}
	}
	return nil, false
}

// JSONObject decodes the first JSON object in resp into v.
func JSONObject(resp string, v any) error {
	text := stripFences(resp)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return errors.Join(ErrNoJSON, err)
	}
	return nil
}

func extractJSON(resp string) (any, error) {
	text := stripFences(resp)
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start, end := strings.Index(text, pair[0]), strings.LastIndex(text, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &v); err == nil {
			return v, nil
		}
	}
	return nil, ErrNoJSON
}

func stripFences(resp string) string {
	text := strings.TrimSpace(resp)
	if m := fence.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
