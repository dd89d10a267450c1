package instrument

import "sync"

// Registry hands out integer refs for registered instruments. The core only
// ever sees refs and redacted tokens, never raw card data.
type Registry struct {
	mu          sync.RWMutex
	instruments []Instrument
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an instrument and returns its ref.
func (r *Registry) Register(inst Instrument) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.instruments = append(r.instruments, inst)
	return len(r.instruments) - 1
}

// Get resolves a ref to an instrument.
func (r *Registry) Get(ref int) (Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref < 0 || ref >= len(r.instruments) {
		return nil, false
	}
	return r.instruments[ref], true
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}

// Snapshot is a redacted view of a registered instrument.
type Snapshot struct {
	Ref     int    `json:"ref"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Usable  bool   `json:"usable"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshots returns redacted views of every registered instrument, in
// registration order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, len(r.instruments))
	for i, inst := range r.instruments {
		usable, reason := inst.IsUsable()
		out[i] = Snapshot{
			Ref:     i,
			Token:   inst.Token(),
			Balance: inst.AvailableBalance().String(),
			Usable:  usable,
			Reason:  reason,
		}
	}
	return out
}
