// Package filter defines the declarative email filter and extraction rule
// configuration model.
//
// Filters are immutable once loaded: all regular expressions are compiled and
// validated up front so that per-email extraction can never fail on a bad
// pattern.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Content scopes for extraction rules.
const (
	// ScopeText applies the rule's pattern to the plain-text body only.
	ScopeText = "text"
	// ScopeHTML applies the rule's pattern to the HTML body only.
	ScopeHTML = "html"
	// ScopeBoth tries the plain-text body first and falls back to HTML.
	ScopeBoth = "both"
	// ScopeTable applies the rule's pattern to a table cell looked up by label.
	ScopeTable = "table"
)

// FallbackPrefix marks a rule as a lower-priority alternative for the field
// named by the remainder. A rule named "fallback_monto" contributes to the
// canonical field "monto" and only runs if no earlier rule produced it.
const FallbackPrefix = "fallback_"

// CanonicalName returns the output field a rule contributes to, stripping the
// fallback marker if present.
func CanonicalName(ruleName string) string {
	return strings.TrimPrefix(ruleName, FallbackPrefix)
}

// ExtractionRule maps one regular expression to one output field.
type ExtractionRule struct {
	// Name is the output field name, or a fallback_<name> alias.
	Name string `json:"name"`
	// Pattern is the regular expression source.
	Pattern string `json:"pattern"`
	// GroupName selects a named capture group. When empty, capture group 1 is
	// used, or the whole match if the pattern defines no groups.
	GroupName string `json:"group_name,omitempty"`
	// ContentType is one of ScopeText, ScopeHTML, ScopeBoth, ScopeTable.
	// Defaults to ScopeBoth.
	ContentType string `json:"content_type,omitempty"`
	// TableLabel is the row label to look up. Required for ScopeTable.
	TableLabel string `json:"table_label,omitempty"`

	compiled *regexp.Regexp
}

// Regexp returns the compiled pattern. It is only valid after Compile.
func (r *ExtractionRule) Regexp() *regexp.Regexp {
	return r.compiled
}

// Compile validates and compiles the rule's pattern.
func (r *ExtractionRule) Compile() error {
	if r.ContentType == "" {
		r.ContentType = ScopeBoth
	}

	switch r.ContentType {
	case ScopeText, ScopeHTML, ScopeBoth, ScopeTable:
	default:
		return fmt.Errorf("unknown content_type %q", r.ContentType)
	}

	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %q: pattern must not be empty", r.Name)
	}
	if r.ContentType == ScopeTable && r.TableLabel == "" {
		return fmt.Errorf("rule %q: table_label is required for table scope", r.Name)
	}

	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %q: invalid pattern: %w", r.Name, err)
	}

	if r.GroupName != "" {
		found := false
		for _, name := range re.SubexpNames() {
			if name == r.GroupName {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("rule %q: pattern has no group named %q", r.Name, r.GroupName)
		}
	}

	r.compiled = re

	return nil
}

// EmailFilter decides whether an email is relevant and which extraction rules
// apply to it. Pattern lists are order-insensitive for matching; the rule
// list's order encodes extraction priority.
type EmailFilter struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`

	SubjectPatterns []string `json:"subject_patterns,omitempty"`
	FromPatterns    []string `json:"from_patterns,omitempty"`
	ToPatterns      []string `json:"to_patterns,omitempty"`
	ContentPatterns []string `json:"content_patterns,omitempty"`

	Rules []ExtractionRule `json:"extraction_rules,omitempty"`

	// Disabled excludes the filter from matching without removing its
	// configuration. The zero value keeps a filter active.
	Disabled  bool      `json:"disabled,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	subjectRes []*regexp.Regexp
	fromRes    []*regexp.Regexp
	toRes      []*regexp.Regexp
	contentRes []*regexp.Regexp
}

// SubjectRegexps returns the compiled subject patterns.
func (f *EmailFilter) SubjectRegexps() []*regexp.Regexp { return f.subjectRes }

// FromRegexps returns the compiled sender patterns.
func (f *EmailFilter) FromRegexps() []*regexp.Regexp { return f.fromRes }

// ToRegexps returns the compiled recipient patterns.
func (f *EmailFilter) ToRegexps() []*regexp.Regexp { return f.toRes }

// ContentRegexps returns the compiled body patterns.
func (f *EmailFilter) ContentRegexps() []*regexp.Regexp { return f.contentRes }

// NeedsTable reports whether any rule requires the table map.
func (f *EmailFilter) NeedsTable() bool {
	for i := range f.Rules {
		if f.Rules[i].ContentType == ScopeTable {
			return true
		}
	}
	return false
}

// Compile validates the filter and compiles every pattern it carries.
// A filter without an ID is assigned one.
func (f *EmailFilter) Compile() error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	var err error
	if f.subjectRes, err = compilePatterns(f.SubjectPatterns); err != nil {
		return fmt.Errorf("subject_patterns: %w", err)
	}
	if f.fromRes, err = compilePatterns(f.FromPatterns); err != nil {
		return fmt.Errorf("from_patterns: %w", err)
	}
	if f.toRes, err = compilePatterns(f.ToPatterns); err != nil {
		return fmt.Errorf("to_patterns: %w", err)
	}
	if f.contentRes, err = compilePatterns(f.ContentPatterns); err != nil {
		return fmt.Errorf("content_patterns: %w", err)
	}

	for i := range f.Rules {
		if err := f.Rules[i].Compile(); err != nil {
			return err
		}
	}

	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}
