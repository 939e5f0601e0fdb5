package tools

import (
	"sync"
)

// Registry holds the tools a session exposes to the model. It accepts
// registrations until it is frozen and is read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	frozen bool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	registry := &Registry{tools: map[string]Tool{}}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(tool Tool) error {
	if err := tool.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	if r.tools == nil {
		r.tools = map[string]Tool{}
	}
	if _, ok := r.tools[tool.Name]; ok {
		return &DuplicateToolError{Name: tool.Name}
	}

	r.tools[tool.Name] = tool.clone()
	r.order = append(r.order, tool.Name)
	return nil
}

func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return Tool{}, &UnknownToolError{Name: name}
	}
	return tool.clone(), nil
}

// Freeze makes the registry read-only. It is safe to call more than once.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Manifest lists the registered tools in registration order.
func (r *Registry) Manifest() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	manifest := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		manifest = append(manifest, r.tools[name].Spec())
	}
	return manifest
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
