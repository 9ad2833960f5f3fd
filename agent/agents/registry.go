package agents

import (
	"sort"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

// StaticRegistry is an explicit agent-name -> adapter mapping, built once
// per process and passed by reference into the executor. There is no
// ambient global registry.
type StaticRegistry struct {
	adapters map[string]contractx.AgentAdapter
}

var _ contractx.Registry = (*StaticRegistry)(nil)

func NewRegistry(adapters ...contractx.AgentAdapter) *StaticRegistry {
	m := make(map[string]contractx.AgentAdapter, len(adapters))
	for _, a := range adapters {
		if a != nil && a.Name() != "" {
			m[a.Name()] = a
		}
	}
	return &StaticRegistry{adapters: m}
}

func (r *StaticRegistry) Adapter(name string) (contractx.AgentAdapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *StaticRegistry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
