package calendar

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guilherme-santos/notifcal/internal"
)

// Mux selects the remote calendar provider of an account by its platform.
type Mux struct {
	mu        sync.RWMutex
	providers map[string]internal.Provider
}

func NewMux() *Mux {
	return &Mux{
		providers: make(map[string]internal.Provider),
	}
}

func (m *Mux) Get(platform string) (internal.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	provider, ok := m.providers[platform]
	if !ok {
		return nil, fmt.Errorf("calendar %q is not implemented", platform)
	}
	return provider, nil
}

func (m *Mux) Register(platform string, provider internal.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[platform] = provider
}

// Platforms lists the registered platforms in name order.
func (m *Mux) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]string, 0, len(m.providers))
	for p := range m.providers {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}
