// Package intent classifies queries into response-template classes via
// an ordered, data-driven predicate table.
package intent

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Intent tags understood by retrieval scoring and response templates.
const (
	Definition      = "definition"
	Explanation     = "explanation"
	Procedure       = "procedure"
	Comparison      = "comparison"
	Troubleshooting = "troubleshooting"
	Summary         = "summary"
	Financial       = "financial"
	Comprehensive   = "comprehensive"
	Greeting        = "greeting"
	General         = "general"
)

// Rule is one predicate: the first rule whose terms or patterns match
// the normalized query wins. Rules are evaluated in file order so the
// vocabulary can grow without code changes.
type Rule struct {
	Intent   string   `yaml:"intent"`
	Terms    []string `yaml:"terms,omitempty"`
	Patterns []string `yaml:"patterns,omitempty"`

	compiled []*regexp.Regexp
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Classifier evaluates rules in order against normalized query text.
type Classifier struct {
	rules []Rule
}

// Load builds a classifier from a YAML rules file; an empty path loads
// the built-in default table.
func Load(path string) (*Classifier, error) {
	if path == "" {
		return defaultClassifier()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse intent rules: %w", err)
	}
	return New(f.Rules)
}

// New compiles a rule table.
func New(rules []Rule) (*Classifier, error) {
	for i := range rules {
		for _, p := range rules[i].Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("intent %q pattern %q: %w", rules[i].Intent, p, err)
			}
			rules[i].compiled = append(rules[i].compiled, re)
		}
	}
	return &Classifier{rules: rules}, nil
}

// Classify returns the first matching intent tag, or General.
func (c *Classifier) Classify(query string) string {
	q := normalize(query)
	for _, rule := range c.rules {
		if rule.matches(q) {
			return rule.Intent
		}
	}
	return General
}

// IsOpenEnded reports whether the intent warrants the more lenient
// relevance floor: open queries tolerate loosely related context.
func IsOpenEnded(tag string) bool {
	switch tag {
	case Explanation, Summary, Comprehensive:
		return true
	default:
		return false
	}
}

func (r Rule) matches(q string) bool {
	for _, term := range r.Terms {
		if strings.Contains(q, term) {
			return true
		}
	}
	for _, re := range r.compiled {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}

func normalize(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.Join(strings.Fields(q), " ")
}

func defaultClassifier() (*Classifier, error) {
	return New([]Rule{
		{Intent: Greeting, Patterns: []string{`^(hi|hello|hey|good (morning|afternoon|evening)|thanks|thank you)\b`}},
		{Intent: Definition, Terms: []string{"what is", "what are", "define", "definition of", "meaning of", "what does"}},
		{Intent: Procedure, Terms: []string{"how to", "how do i", "how can i", "steps to", "procedure", "walk me through"}},
		{Intent: Comparison, Terms: []string{"difference between", "compare", "versus", " vs ", "better than", "similarities"}},
		{Intent: Troubleshooting, Terms: []string{"error", "fix", "problem", "not working", "fails", "troubleshoot", "why doesn't"}},
		{Intent: Summary, Terms: []string{"summarize", "summary", "overview of", "main points", "key takeaways", "tldr"}},
		{Intent: Financial, Terms: []string{"revenue", "profit", "expense", "balance sheet", "cash flow", "cost of"}},
		{Intent: Comprehensive, Terms: []string{"everything about", "tell me all", "in depth", "comprehensive", "full detail"}},
		{Intent: Explanation, Terms: []string{"explain", "why", "how does", "how is", "what happens"}},
	})
}
