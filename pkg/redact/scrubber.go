package redact

import (
	"regexp"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Scrubber masks patient identifiers in free text before it leaves the
// platform boundary, typically on its way to an external language model.
type Scrubber struct {
	rules []compiledRule
}

type Finding struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Severity string `json:"severity"`
}

func NewScrubber(cfg RulesConfig) (*Scrubber, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Scrubber{rules: compiled}, nil
}

// Scrub replaces every identifier match with its rule's mask and reports
// what was found, one finding per rule type. A nil scrubber passes text
// through untouched.
func (s *Scrubber) Scrub(text string) (string, []Finding) {
	if s == nil {
		return text, nil
	}

	var findings []Finding
	for _, rule := range s.rules {
		matches := rule.re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		findings = append(findings, Finding{
			Type:     rule.rule.Type,
			Count:    len(matches),
			Severity: rule.rule.Severity,
		})
		text = rule.re.ReplaceAllString(text, rule.rule.Mask)
	}
	return text, findings
}

// Detected reports whether the text contains any identifier without
// altering it.
func (s *Scrubber) Detected(text string) bool {
	if s == nil {
		return false
	}
	for _, rule := range s.rules {
		if rule.re.MatchString(text) {
			return true
		}
	}
	return false
}
