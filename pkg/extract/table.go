// Package extract implements the pattern-matching and field-extraction engine:
// table extraction, filter matching, per-rule field extraction, and the
// per-email pipeline that ties them together.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
)

// TableMap maps normalized row labels to their values for a single email.
// It is transient: built once per email per pipeline run and never shared.
type TableMap map[string]string

// Lookup returns the value stored under a label, normalizing the label the
// same way table rows were normalized at build time.
func (t TableMap) Lookup(label string) (string, bool) {
	v, ok := t[NormalizeLabel(label)]
	return v, ok
}

var labelFolder = cases.Fold()

// NormalizeLabel case-folds a label, strips a trailing colon and collapses
// internal whitespace, so that "Numero de  Referencia:" and
// "numero de referencia" address the same row.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ":")
	label = labelFolder.String(label)
	return strings.Join(strings.Fields(label), " ")
}

// BuildTableMap scans an email body for structured label/value rows and
// returns them as a TableMap. Plain-text bodies contribute "label: value"
// lines; HTML bodies contribute table rows whose first cell is the label.
//
// The first occurrence of a label always wins, scanning plain text before
// HTML. Bodies with no recognizable rows produce an empty map; this is never
// an error.
func BuildTableMap(plainText, html string) TableMap {
	tm := make(TableMap)
	scanTextRows(plainText, tm)
	scanHTMLRows(html, tm)
	return tm
}

// scanTextRows adds "label: value" lines to tm. Lines without a colon, or
// with nothing before it, are ignored.
func scanTextRows(text string, tm TableMap) {
	if text == "" {
		return
	}

	for _, line := range strings.Split(text, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key := NormalizeLabel(label)
		if key == "" {
			continue
		}
		if _, exists := tm[key]; exists {
			continue
		}
		tm[key] = strings.TrimSpace(value)
	}
}

// scanHTMLRows adds rows from HTML tables to tm. A row qualifies when its
// first cell holds the label and its second cell the value; extra cells are
// ignored.
func scanHTMLRows(html string, tm TableMap) {
	if html == "" {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup yields no rows, same as an unstructured body.
		return
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}

		key := NormalizeLabel(cells.Eq(0).Text())
		if key == "" {
			return
		}
		if _, exists := tm[key]; exists {
			return
		}
		tm[key] = strings.TrimSpace(cells.Eq(1).Text())
	})
}
