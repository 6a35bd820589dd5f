package play

import (
	"fmt"
	"regexp"
	"sync"
)

// Application and version names never leave this pattern, whatever they are later used for.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9.]+$`)

func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Module is an application that can be selected in the handshake.
type Module struct {
	Name        string
	DisplayName string
	Versions    map[string]Factory
}

// Registry maps application names (and aliases) to modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	aliases map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]*Module),
		aliases: make(map[string]string),
	}
}

func (r *Registry) Register(m Module) error {
	if !validIdentifier(m.Name) {
		return fmt.Errorf("invalid application name %q", m.Name)
	}
	for v := range m.Versions {
		if !validIdentifier(v) {
			return fmt.Errorf("invalid version %q for %s", v, m.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.Name]; exists {
		return fmt.Errorf("application %s already registered", m.Name)
	}
	r.modules[m.Name] = &m
	return nil
}

// Alias makes alias resolve to the module registered as name.
func (r *Registry) Alias(alias, name string) error {
	if !validIdentifier(alias) {
		return fmt.Errorf("invalid alias %q", alias)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[name]; !ok {
		return fmt.Errorf("alias %s: %w: %s", alias, ErrUnknownApplication, name)
	}
	r.aliases[alias] = name
	return nil
}

// Lookup resolves an application/version pair. Names outside the identifier pattern
// are reported as unknown applications without being looked up.
func (r *Registry) Lookup(application, version string) (*Module, Factory, error) {
	if !validIdentifier(application) || !validIdentifier(version) {
		return nil, nil, ErrUnknownApplication
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name := application
	if target, ok := r.aliases[application]; ok {
		name = target
	}
	m, ok := r.modules[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownApplication, application)
	}
	f, ok := m.Versions[version]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s@%s", ErrBadVersion, application, version)
	}
	return m, f, nil
}

// Applications lists the registered module names.
func (r *Registry) Applications() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}
