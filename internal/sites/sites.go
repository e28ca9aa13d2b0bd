// Package sites holds the static per-tenant configuration. Sites are defined
// in a JSON file loaded at startup and are read-only at runtime.
package sites

import (
	"encoding/json"
	"fmt"
	"os"
)

// Feed is one RSS/Atom source belonging to a site.
type Feed struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Site is one isolated tenant: a podcast or a group of feeds with its own
// data, index and (in remote mode) its own bucket.
type Site struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Feeds  []Feed `json:"feeds"`
	Domain string `json:"domain,omitempty"`
}

// Registry is the full set of configured sites.
type Registry struct {
	sites []Site
	byID  map[string]Site
}

// Load reads the site registry from a JSON file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites config %s: %w", path, err)
	}

	var list []Site
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse sites config %s: %w", path, err)
	}

	byID := make(map[string]Site, len(list))
	for _, s := range list {
		if s.ID == "" {
			return nil, fmt.Errorf("site with empty id in %s", path)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate site id %q in %s", s.ID, path)
		}
		byID[s.ID] = s
	}

	return &Registry{sites: list, byID: byID}, nil
}

// All returns every configured site in declaration order.
func (r *Registry) All() []Site {
	return r.sites
}

// Get looks a site up by its id.
func (r *Registry) Get(id string) (Site, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Subset returns the sites whose ids are listed, erroring on unknown ids.
func (r *Registry) Subset(ids []string) ([]Site, error) {
	out := make([]Site, 0, len(ids))
	for _, id := range ids {
		s, ok := r.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown site id %q", id)
		}
		out = append(out, s)
	}
	return out, nil
}
