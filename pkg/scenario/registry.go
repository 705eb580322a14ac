package scenario

import (
	"sort"
	"sync"
)

// Entry describes one registered scenario.
type Entry struct {
	Name        string
	Description string

	// DefaultParams are the scenario's parameter defaults; run-time
	// --param values override them key by key.
	DefaultParams map[string]interface{}

	// Hooks constructs a fresh hooks instance for a run.
	Hooks func() Hooks
}

var (
	registryMu sync.Mutex
	registry   = map[string]Entry{}
)

// Register adds a scenario to the registry; it panics on a duplicate
// name, which is a programming error.
func Register(e Entry) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[e.Name]; ok {
		panic("scenario already registered: " + e.Name)
	}
	registry[e.Name] = e
}

// Get looks up a scenario by name.
func Get(name string) (Entry, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[name]
	return e, ok
}

// List returns all registered scenarios, sorted by name.
func List() []Entry {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Entry, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
