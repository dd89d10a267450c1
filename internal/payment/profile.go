package payment

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Profile is a named, reusable instrument selection with an optional split
// ratio. Immutable once saved; saving the same name again replaces the whole
// profile.
type Profile struct {
	Name   string    `json:"name"`
	Refs   []int     `json:"refs"`
	Ratios []float64 `json:"ratios,omitempty"`
}

// Validate checks profile shape: 1-3 refs and, when present, a ratio vector
// of the same length whose elements are non-negative and sum to 1 within
// rounding.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if len(p.Refs) == 0 || len(p.Refs) > 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidInstrumentCount, len(p.Refs))
	}
	if p.Ratios == nil {
		return nil
	}
	if len(p.Ratios) != len(p.Refs) {
		return fmt.Errorf("%w: %d ratios for %d refs", ErrSplitCountMismatch, len(p.Ratios), len(p.Refs))
	}
	var sum float64
	for i, r := range p.Ratios {
		if r < 0 {
			return fmt.Errorf("ratio %d is negative", i)
		}
		sum += r
	}
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("ratios must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// ProfileStore holds saved profiles by name.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewProfileStore creates an empty profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]Profile)}
}

// Save validates and stores a profile, replacing any existing profile with
// the same name.
func (s *ProfileStore) Save(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	cp := Profile{
		Name:   p.Name,
		Refs:   append([]int(nil), p.Refs...),
		Ratios: append([]float64(nil), p.Ratios...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Name] = cp
	return nil
}

// Get looks up a profile by name.
func (s *ProfileStore) Get(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return Profile{
		Name:   p.Name,
		Refs:   append([]int(nil), p.Refs...),
		Ratios: append([]float64(nil), p.Ratios...),
	}, nil
}
