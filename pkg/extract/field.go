package extract

import (
	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
)

// ExtractField applies one rule to an email and returns the captured value.
// The second return is false when the rule yields nothing: a missing table
// row, a pattern that does not match, or a named group that did not
// participate in the match. None of these are errors.
func ExtractField(rule *filter.ExtractionRule, tm TableMap, body api.Body) (string, bool) {
	switch rule.ContentType {
	case filter.ScopeTable:
		cell, ok := tm.Lookup(rule.TableLabel)
		if !ok {
			return "", false
		}
		return capture(rule, cell)

	case filter.ScopeText:
		return capture(rule, body.PlainText)

	case filter.ScopeHTML:
		return capture(rule, body.HTML)

	default: // ScopeBoth: plain text first, HTML on no-match.
		if v, ok := capture(rule, body.PlainText); ok {
			return v, true
		}
		return capture(rule, body.HTML)
	}
}

// capture runs the rule's pattern against text and picks the captured value:
// the named group if GroupName is set, otherwise group 1, otherwise the whole
// match. Submatch indexes are used so a group that did not participate in the
// match (possible with alternation) is distinguishable from one that captured
// an empty string.
func capture(rule *filter.ExtractionRule, text string) (string, bool) {
	re := rule.Regexp()
	idx := re.FindStringSubmatchIndex(text)
	if idx == nil {
		return "", false
	}

	group := 0
	if rule.GroupName != "" {
		group = -1
		for i, name := range re.SubexpNames() {
			if name == rule.GroupName {
				group = i
				break
			}
		}
		if group < 0 {
			// Unknown group names are caught at filter load; treat as absent.
			return "", false
		}
	} else if re.NumSubexp() > 0 {
		group = 1
	}

	start, end := idx[2*group], idx[2*group+1]
	if start < 0 {
		return "", false
	}
	return text[start:end], true
}
