// Package prompts holds the task templates sent to the language model.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Names of the templates the orchestrator renders.
const (
	Classify       = "classify"
	PaperInfo      = "paper_info"
	Datasets       = "datasets"
	Licenses       = "licenses"
	Methodology    = "methodology"
	SectionSummary = "section_summary"
	GlobalSummary  = "global_summary"
	GapAnalysis    = "gap_analysis"
)

var required = []string{Classify, PaperInfo, Datasets, Licenses, Methodology, SectionSummary, GlobalSummary, GapAnalysis}

// Data is the value every template is executed with.
type Data struct {
	Title      string
	Section    string
	Context    string
	PaperCount int
}

// Prompt is one parsed template with its generation settings.
type Prompt struct {
	Temperature float32
	MaxTokens   int
	tmpl        *template.Template
}

type entry struct {
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Template    string   `yaml:"template"`
}

// Store is an immutable set of prompts.
type Store struct {
	prompts map[string]Prompt
}

// Load parses the embedded defaults, then applies overrides from overridePath
// when it is not empty.
func Load(overridePath string) (*Store, error) {
	entries, err := decode(defaultPrompts)
	if err != nil {
		return nil, fmt.Errorf("parse default prompts: %w", err)
	}

	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		overrides, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("parse prompts file %s: %w", overridePath, err)
		}
		for name, o := range overrides {
			base := entries[name]
			if o.Template != "" {
				base.Template = o.Template
			}
			if o.Temperature != nil {
				base.Temperature = o.Temperature
			}
			if o.MaxTokens > 0 {
				base.MaxTokens = o.MaxTokens
			}
			entries[name] = base
		}
	}

	s := &Store{prompts: make(map[string]Prompt, len(entries))}
	for name, e := range entries {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(e.Template)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		p := Prompt{MaxTokens: e.MaxTokens, tmpl: tmpl}
		if e.Temperature != nil {
			p.Temperature = *e.Temperature
		}
		s.prompts[name] = p
	}
	for _, name := range required {
		if _, ok := s.prompts[name]; !ok {
			return nil, fmt.Errorf("prompt %s is missing", name)
		}
	}
	return s, nil
}

// MustDefault returns the embedded prompts and panics if they do not parse.
func MustDefault() *Store {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

// Render executes the named template.
func (s *Store) Render(name string, data Data) (string, Prompt, error) {
	p, ok := s.prompts[name]
	if !ok {
		return "", Prompt{}, fmt.Errorf("unknown prompt %q", name)
	}
	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", Prompt{}, fmt.Errorf("render prompt %s: %w", name, err)
	}
	return b.String(), p, nil
}

func decode(raw []byte) (map[string]entry, error) {
	entries := make(map[string]entry)
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
