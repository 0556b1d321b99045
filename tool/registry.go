package tool

import "sort"

// Registry is a read-only name-keyed tool collection. It is populated at
// construction and never mutated afterwards, so it is safe to share across
// concurrent dispatches without locking.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry builds a registry from the given tools. Later duplicates of a
// name replace earlier ones.
func NewRegistry(tools ...Tool) *Registry {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{tools: byName, names: names}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// Describe renders "name: description" lines for reasoning prompts.
func (r *Registry) Describe() string {
	var out string
	for _, name := range r.names {
		out += name + ": " + r.tools[name].Description() + "\n"
	}
	return out
}
