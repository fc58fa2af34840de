package webhook

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadEndpoints reads webhook endpoints from a JSON array file.
func LoadEndpoints(path string) ([]*Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading webhooks file: %w", err)
	}

	var endpoints []*Endpoint
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return nil, fmt.Errorf("parsing webhooks file: %w", err)
	}

	for i, ep := range endpoints {
		if ep == nil {
			return nil, fmt.Errorf("webhook %d: null entry", i)
		}
		if ep.URL == "" {
			return nil, fmt.Errorf("webhook %d: url is required", i)
		}
		if len(ep.EventTypes) == 0 {
			ep.EventTypes = []string{EventAll}
		}
	}

	return endpoints, nil
}
