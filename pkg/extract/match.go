package extract

import (
	"regexp"
	"strings"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
)

// Matches reports whether a filter applies to an email.
//
// Each non-empty pattern category (subject, from, to, content) must match the
// email's corresponding field with at least one of its patterns; empty
// categories impose no constraint. Matching is an unanchored regex search and
// case-sensitive unless a pattern opts in with (?i).
func Matches(f *filter.EmailFilter, msg *api.EmailMessage) bool {
	if !anyMatch(f.SubjectRegexps(), msg.Subject) {
		return false
	}
	if !anyMatch(f.FromRegexps(), msg.From) {
		return false
	}
	if !anyMatch(f.ToRegexps(), strings.Join(msg.To, ", ")) {
		return false
	}

	// Content patterns may match either body variant.
	if res := f.ContentRegexps(); len(res) > 0 {
		if !anyMatch(res, msg.Body.PlainText) && !anyMatch(res, msg.Body.HTML) {
			return false
		}
	}

	return true
}

// anyMatch reports whether text matches at least one pattern. An empty
// pattern list is vacuously satisfied.
func anyMatch(res []*regexp.Regexp, text string) bool {
	if len(res) == 0 {
		return true
	}
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// SelectFilter returns the first enabled filter in configuration order that
// matches the email, or nil if none does. Selection is deterministic: no
// scoring, declaration order decides ties.
func SelectFilter(filters []*filter.EmailFilter, msg *api.EmailMessage) *filter.EmailFilter {
	for _, f := range filters {
		if f.Disabled {
			continue
		}
		if Matches(f, msg) {
			return f
		}
	}
	return nil
}
