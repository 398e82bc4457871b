package registry

import (
	"fmt"
	"net/url"
	"sort"
)

// Service describes a single downstream microservice: its logical name,
// the base URL requests are forwarded to, and the gateway route prefix
// that maps onto it (e.g. "/api/auth").
type Service struct {
	Name    string
	BaseURL *url.URL
	Prefix  string
}

// Registry is the immutable set of registered services.
type Registry struct {
	byName   map[string]*Service
	byPrefix map[string]*Service
	ordered  []*Service
}

// New builds a registry from name -> (baseURL, prefix) entries.
// Returns an error on empty input, duplicate names or prefixes,
// or base URLs that fail to parse.
func New(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no services registered")
	}

	r := &Registry{
		byName:   make(map[string]*Service, len(entries)),
		byPrefix: make(map[string]*Service, len(entries)),
	}

	for _, e := range entries {
		if _, exists := r.byName[e.Name]; exists {
			return nil, fmt.Errorf("duplicate service name %q", e.Name)
		}
		if _, exists := r.byPrefix[e.Prefix]; exists {
			return nil, fmt.Errorf("duplicate route prefix %q", e.Prefix)
		}

		u, err := url.Parse(e.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("service %q: invalid base URL %q: %w", e.Name, e.BaseURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("service %q: base URL must use http or https", e.Name)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("service %q: base URL must have a host", e.Name)
		}

		svc := &Service{Name: e.Name, BaseURL: u, Prefix: e.Prefix}
		r.byName[e.Name] = svc
		r.byPrefix[e.Prefix] = svc
		r.ordered = append(r.ordered, svc)
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name < r.ordered[j].Name
	})

	return r, nil
}

// Entry is the raw configuration form of a service registration.
type Entry struct {
	Name    string
	BaseURL string
	Prefix  string
}

// Lookup returns the service with the given name, or false if unknown.
func (r *Registry) Lookup(name string) (*Service, bool) {
	svc, ok := r.byName[name]
	return svc, ok
}

// All returns every registered service in stable name order.
func (r *Registry) All() []*Service {
	out := make([]*Service, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.ordered)
}
