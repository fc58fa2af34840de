package extract

import (
	"testing"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
)

func mustFilter(t *testing.T, f *filter.EmailFilter) *filter.EmailFilter {
	t.Helper()
	if err := f.Compile(); err != nil {
		t.Fatalf("compiling filter: %v", err)
	}
	return f
}

func sampleEmail() *api.EmailMessage {
	return &api.EmailMessage{
		ID:      "msg-001",
		Subject: "Notificación de Transacción",
		From:    "alertas@banco.com.do",
		To:      []string{"cliente@example.com"},
		Body: api.Body{
			PlainText: "Monto: USD 1,500.00\nComercio: SUPERMERCADO NACIONAL",
		},
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter *filter.EmailFilter
		want   bool
	}{
		{
			name:   "all categories empty matches everything",
			filter: &filter.EmailFilter{Name: "catch-all"},
			want:   true,
		},
		{
			name: "subject matches",
			filter: &filter.EmailFilter{
				Name:            "subject",
				SubjectPatterns: []string{`Transacción`},
			},
			want: true,
		},
		{
			name: "subject does not match",
			filter: &filter.EmailFilter{
				Name:            "subject-miss",
				SubjectPatterns: []string{`Estado de Cuenta`},
			},
			want: false,
		},
		{
			name: "or within category",
			filter: &filter.EmailFilter{
				Name:            "or",
				SubjectPatterns: []string{`Estado de Cuenta`, `Transacción`},
			},
			want: true,
		},
		{
			name: "and across categories",
			filter: &filter.EmailFilter{
				Name:            "and",
				SubjectPatterns: []string{`Transacción`},
				FromPatterns:    []string{`@banco\.com\.do$`},
			},
			want: true,
		},
		{
			name: "one failing category fails the filter",
			filter: &filter.EmailFilter{
				Name:            "and-miss",
				SubjectPatterns: []string{`Transacción`},
				FromPatterns:    []string{`@otrobanco\.com$`},
			},
			want: false,
		},
		{
			name: "recipient pattern",
			filter: &filter.EmailFilter{
				Name:       "to",
				ToPatterns: []string{`cliente@example\.com`},
			},
			want: true,
		},
		{
			name: "content pattern against body",
			filter: &filter.EmailFilter{
				Name:            "content",
				ContentPatterns: []string{`Monto:\s+USD`},
			},
			want: true,
		},
		{
			name: "matching is case-sensitive by default",
			filter: &filter.EmailFilter{
				Name:            "case",
				ContentPatterns: []string{`monto:\s+usd`},
			},
			want: false,
		},
		{
			name: "patterns encode their own case-insensitivity",
			filter: &filter.EmailFilter{
				Name:            "case-insensitive",
				ContentPatterns: []string{`(?i)monto:\s+usd`},
			},
			want: true,
		},
	}

	msg := sampleEmail()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := mustFilter(t, tc.filter)
			if got := Matches(f, msg); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatches_ContentAgainstHTMLBody(t *testing.T) {
	msg := &api.EmailMessage{
		ID:      "msg-html",
		Subject: "Aviso",
		From:    "alertas@banco.com.do",
		Body: api.Body{
			HTML: "<td>Monto: </td><td>DOP 25.00</td>",
		},
	}

	f := mustFilter(t, &filter.EmailFilter{
		Name:            "html-content",
		ContentPatterns: []string{`DOP\s+[\d,.]+`},
	})

	if !Matches(f, msg) {
		t.Error("content pattern should match the HTML body when plain text is absent")
	}
}

func TestSelectFilter_FirstMatchWins(t *testing.T) {
	first := mustFilter(t, &filter.EmailFilter{
		ID:              "f1",
		Name:            "first",
		SubjectPatterns: []string{`Transacción`},
	})
	second := mustFilter(t, &filter.EmailFilter{
		ID:              "f2",
		Name:            "second",
		SubjectPatterns: []string{`Transacción`},
	})

	got := SelectFilter([]*filter.EmailFilter{first, second}, sampleEmail())
	if got == nil || got.ID != "f1" {
		t.Fatalf("SelectFilter picked %v, want filter f1", got)
	}
}

func TestSelectFilter_SkipsDisabled(t *testing.T) {
	disabled := mustFilter(t, &filter.EmailFilter{
		ID:              "f1",
		Name:            "disabled",
		Disabled:        true,
		SubjectPatterns: []string{`Transacción`},
	})
	enabled := mustFilter(t, &filter.EmailFilter{
		ID:              "f2",
		Name:            "enabled",
		SubjectPatterns: []string{`Transacción`},
	})

	got := SelectFilter([]*filter.EmailFilter{disabled, enabled}, sampleEmail())
	if got == nil || got.ID != "f2" {
		t.Fatalf("SelectFilter picked %v, want the enabled filter", got)
	}
}

func TestSelectFilter_NoMatch(t *testing.T) {
	f := mustFilter(t, &filter.EmailFilter{
		Name:            "unrelated",
		SubjectPatterns: []string{`Newsletter`},
		FromPatterns:    []string{`noreply@tienda\.com`},
	})

	if got := SelectFilter([]*filter.EmailFilter{f}, sampleEmail()); got != nil {
		t.Errorf("expected no filter to match, got %q", got.Name)
	}
}
