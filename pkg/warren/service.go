package warren

import (
	"fmt"
	"regexp"
)

// Service names must be usable inside Redis keys and routing keys.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Service is a named collection of entrypoints. Build one with NewService,
// attach entrypoints with Add, then run it in a Container.
type Service struct {
	name        string
	entrypoints []Entrypoint
}

// NewService creates a service. Names must be lowercase alphanumeric with
// hyphens, matching the constraints on queue and exchange names.
func NewService(name string) (*Service, error) {
	if !serviceNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid service name %q: must be lowercase alphanumeric with hyphens", name)
	}
	return &Service{name: name}, nil
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// Add attaches an entrypoint to the service. Returns the service for
// chaining.
func (s *Service) Add(ep Entrypoint) *Service {
	s.entrypoints = append(s.entrypoints, ep)
	return s
}

// Entrypoints returns the attached entrypoints in registration order.
func (s *Service) Entrypoints() []Entrypoint {
	return s.entrypoints
}
