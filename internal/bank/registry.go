package bank

import "sync/atomic"

// Registry is an immutable snapshot of bank clients keyed by bank code.
// Register swaps a copied map in atomically; in-flight requests keep the
// snapshot they looked up against and never observe in-place mutation.
type Registry struct {
	clients atomic.Pointer[map[string]Client]
}

func NewRegistry(clients map[string]Client) *Registry {
	snapshot := make(map[string]Client, len(clients))
	for code, c := range clients {
		snapshot[code] = c
	}
	r := &Registry{}
	r.clients.Store(&snapshot)
	return r
}

func (r *Registry) Lookup(bankCode string) (Client, bool) {
	c, ok := (*r.clients.Load())[bankCode]
	return c, ok
}

func (r *Registry) Register(bankCode string, client Client) {
	for {
		old := r.clients.Load()
		next := make(map[string]Client, len(*old)+1)
		for code, c := range *old {
			next[code] = c
		}
		next[bankCode] = client
		if r.clients.CompareAndSwap(old, &next) {
			return
		}
	}
}
