package bridge

import "sync"

type toolEntry struct {
	def     ToolDefinition
	handler ToolHandler
}

// ToolRegistry is the in-memory mapping from unique tool name to
// (definition, handler) (spec §4.6). Mutation-safe under concurrent
// registration; reads are guarded by a read lock.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]toolEntry
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]toolEntry)}
}

// Register validates the definition and fails on duplicates unless
// replace is true (spec §4.6).
func (r *ToolRegistry) Register(def ToolDefinition, handler ToolHandler, replace bool) error {
	if err := validateToolDefinition(def); err != nil {
		return err
	}
	if handler == nil {
		return NewValidationError("tool " + def.Name + " must have a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists && !replace {
		return NewValidationError("tool " + def.Name + " is already registered")
	}
	r.tools[def.Name] = toolEntry{def: def, handler: handler}
	return nil
}

func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *ToolRegistry) Get(name string) (ToolDefinition, ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, nil, false
	}
	return e.def, e.handler, true
}

// List returns a snapshot of every registered tool definition.
func (r *ToolRegistry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.def)
	}
	return out
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
