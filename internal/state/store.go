package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
)

var ErrCorrupt = errors.New("state document is corrupt")

// Backend persists the encoded state document as a whole. Load returns
// nil data when nothing has been saved yet.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
	Close() error
}

// Store owns the registries. Every read goes through View and every
// mutation through Update; both run under one lock, and Update persists
// the whole document before releasing it.
type Store struct {
	mu      sync.RWMutex
	reg     *Registry
	backend Backend
	logger  *zap.Logger
}

// Open loads the document from backend. Any failure is returned; callers
// must not run with a partially initialized state.
func Open(backend Backend, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	reg := &Registry{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, reg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	for _, c := range reg.Chats {
		if c == nil {
			return nil, fmt.Errorf("%w: null chat entry", ErrCorrupt)
		}
	}

	logger.Info("state loaded",
		zap.Int("owners", len(reg.Owners)),
		zap.Int("chats", len(reg.Chats)),
		zap.Int("otp", len(reg.OTP)),
		zap.Int("offset", reg.Offset),
	)

	return &Store{reg: reg, backend: backend, logger: logger}, nil
}

// View runs fn with read access to the registry. fn must not retain
// pointers into the registry after it returns.
func (s *Store) View(fn func(r *Registry)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.reg)
}

// Update runs fn with write access to the registry. If fn reports a
// change the whole document is saved before the lock is released.
func (s *Store) Update(fn func(r *Registry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(s.reg) {
		return nil
	}
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')
	if err := s.backend.Save(data); err != nil {
		s.logger.Error("state save failed", zap.Error(err))
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the registry.
func (s *Store) Snapshot() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.clone()
}

func (s *Store) Offset() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.Offset
}

func (s *Store) SetOffset(offset int) error {
	return s.Update(func(r *Registry) bool {
		if r.Offset == offset {
			return false
		}
		r.Offset = offset
		return true
	})
}

// Defaults returns the lifetimes currently recorded in the document.
func (s *Store) Defaults() domain.Defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.Defaults
}

// SetDefaults records the configured defaults in the document.
func (s *Store) SetDefaults(d domain.Defaults) error {
	return s.Update(func(r *Registry) bool {
		if r.Defaults == d {
			return false
		}
		r.Defaults = d
		return true
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// NewBackend returns the backend named by kind: "file" (default) or "bolt".
func NewBackend(kind, path string) (Backend, error) {
	switch kind {
	case "", "file":
		b, err := NewFileBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "bolt":
		b, err := NewBoltBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", kind)
	}
}
