// Package device stores the per-user device metadata that the sign-in flow
// merges into auth parameters as DEVICE_KEY.
package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrRedisUnavailable is returned when the Redis backend cannot be reached.
var ErrRedisUnavailable = errors.New("device: redis unavailable")

// ErrInvalidMetadata is returned when Put is called without a device key.
var ErrInvalidMetadata = errors.New("device: invalid metadata")

// Metadata is what the identity provider issued for a remembered device.
type Metadata struct {
	DeviceKey      string
	DeviceGroupKey string
	CreatedAt      time.Time
}

// Store looks up device metadata by username. Get returns (nil, nil) when
// no device is known for the user.
type Store interface {
	Get(ctx context.Context, username string) (*Metadata, error)
	Put(ctx context.Context, username string, md *Metadata) error
	Delete(ctx context.Context, username string) error
}

func validate(md *Metadata) error {
	if md == nil || strings.TrimSpace(md.DeviceKey) == "" {
		return ErrInvalidMetadata
	}
	return nil
}

// MemoryStore is a concurrency-safe in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]Metadata
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]Metadata)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, username string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.devices[username]
	if !ok {
		return nil, nil
	}
	return &md, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, username string, md *Metadata) error {
	if err := validate(md); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[username] = *md
	return nil
}

// Delete implements Store. Deleting an unknown user is not an error.
func (s *MemoryStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, username)
	return nil
}
