package filter

import (
	"encoding/json"
	"fmt"
	"os"
)

// ValidationError is a load-time configuration error. The engine refuses to
// run with an invalid filter set, since every subsequent result would be
// unreliable.
type ValidationError struct {
	// FilterName names the offending filter, if known.
	FilterName string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.FilterName != "" {
		return fmt.Sprintf("filter %q: %v", e.FilterName, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Parse decodes a JSON array of filters and compiles every pattern.
// It fails fast on the first invalid filter.
func Parse(data []byte) ([]*EmailFilter, error) {
	var raw []*EmailFilter
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("decoding filters: %w", err)}
	}
	return compileAll(raw)
}

// LoadFile reads a filter configuration file (a JSON array of filters) and
// compiles it.
func LoadFile(path string) ([]*EmailFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	filters, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, &ValidationError{Err: fmt.Errorf("%s: no filters defined", path)}
	}
	return filters, nil
}

func compileAll(filters []*EmailFilter) ([]*EmailFilter, error) {
	seen := make(map[string]struct{}, len(filters))
	for i, f := range filters {
		if f == nil {
			return nil, &ValidationError{Err: fmt.Errorf("filter %d: null entry", i)}
		}
		if err := f.Compile(); err != nil {
			return nil, &ValidationError{FilterName: f.Name, Err: err}
		}
		if _, dup := seen[f.ID]; dup {
			return nil, &ValidationError{FilterName: f.Name, Err: fmt.Errorf("duplicate filter id %q", f.ID)}
		}
		seen[f.ID] = struct{}{}
	}
	return filters, nil
}
