package extract

import (
	"log/slog"
	"time"

	"github.com/mailscout/mailscout/pkg/api"
	"github.com/mailscout/mailscout/pkg/filter"
)

// Pipeline runs a matched filter's rule sequence over one email and
// assembles the extraction result. It holds no per-email state and is safe
// for concurrent use.
type Pipeline struct {
	logger *slog.Logger
	// now is overridable for tests.
	now func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger, now: time.Now}
}

// Run applies every rule of f to msg, in declared order, and returns the
// assembled result.
//
// The canonical field name of each rule is its name with the fallback marker
// stripped; once a canonical name holds a value, later rules for the same
// name are skipped. Rule order therefore encodes priority: a rule declared
// before a competing fallback wins if it matches first. Partial results are
// a normal outcome, never an error.
func (p *Pipeline) Run(f *filter.EmailFilter, msg *api.EmailMessage) *api.ExtractionResult {
	// The table map is only worth building when some rule will consult it.
	var tm TableMap
	if f.NeedsTable() {
		tm = BuildTableMap(msg.Body.PlainText, msg.Body.HTML)
	}

	fields := make(map[string]string)
	for i := range f.Rules {
		rule := &f.Rules[i]

		name := filter.CanonicalName(rule.Name)
		if _, done := fields[name]; done {
			continue
		}

		value, ok := ExtractField(rule, tm, msg.Body)
		if !ok {
			p.logger.Debug("rule yielded no value",
				"filter", f.Name,
				"rule", rule.Name,
				"email_id", msg.ID,
			)
			continue
		}
		fields[name] = value
	}

	p.logger.Debug("assembled extraction result",
		"filter", f.Name,
		"email_id", msg.ID,
		"field_count", len(fields),
	)

	return &api.ExtractionResult{
		EmailID:     msg.ID,
		FilterID:    f.ID,
		FilterName:  f.Name,
		Fields:      fields,
		ReceivedAt:  msg.Date,
		ExtractedAt: p.now(),
	}
}
