// Package model provides shared state management for streamlm estimators.
package model

import (
	"fmt"
	"sync"
)

// StateManager manages the fitted state of a model in a thread-safe manner.
// For online estimators "fitted" means the parameter estimates have started
// updating, i.e. the bootstrap phase is over.
type StateManager struct {
	Fitted bool // Public for gob encoding
	mu     sync.RWMutex

	// Model dimensions - Public for gob encoding
	NFixed  int
	NRandom int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{
		Fitted: false,
	}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted.
func (s *StateManager) SetFitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
}

// Reset resets the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFixed = 0
	s.NRandom = 0
}

// SetDimensions sets the fixed- and random-effect dimensions.
func (s *StateManager) SetDimensions(nFixed, nRandom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NFixed = nFixed
	s.NRandom = nRandom
}

// GetDimensions returns the fixed- and random-effect dimensions.
func (s *StateManager) GetDimensions() (nFixed, nRandom int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFixed, s.NRandom
}

// RequireFitted returns an error if the model has not been fitted.
func (s *StateManager) RequireFitted() error {
	if !s.IsFitted() {
		return fmt.Errorf("model parameters are not available yet; keep feeding observations")
	}
	return nil
}
