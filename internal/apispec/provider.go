package apispec

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"testforge/internal/logging"
)

// ErrNotFound is returned when a spec id is unknown to the provider.
var ErrNotFound = fmt.Errorf("spec not found")

// Provider gives read-only access to normalized specs.
type Provider interface {
	GetByID(specID string) (*Spec, error)
}

// Registry is an in-memory Provider with concurrent-safe registration.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry creates an empty spec registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register validates and stores a spec.
func (r *Registry) Register(spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid spec: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.ID] = spec
	logging.BootDebug("registered spec %s (%d operations)", spec.ID, len(spec.Operations))
	return nil
}

// GetByID implements Provider.
func (r *Registry) GetByID(specID string) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[specID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, specID)
	}
	return spec, nil
}

// LoadFile parses a normalized spec from a YAML file.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec file %s: %w", path, err)
	}
	if spec.ID == "" {
		spec.ID = path
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}
