// Package kvstore is the console's only door to durable state: a small
// JSON key-value adapter over a pluggable backend that never surfaces
// storage failures to its callers.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"gestio.app/internal/obs"
)

// ErrNotFound is returned by backends when a key is absent.
var ErrNotFound = errors.New("kvstore: key not found")

// Backend persists raw values by key. Implementations must be safe for
// concurrent use and return ErrNotFound for missing keys.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store wraps a Backend with JSON encoding and error containment.
type Store struct {
	backend Backend
	log     *zap.Logger
}

// Option configures Store.
type Option func(*Store)

// WithLogger overrides the logger used for contained failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, log: obs.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("kvstore")
	return s
}

// Get decodes the value stored under key, or returns fallback when the key
// is absent, unreadable or not valid JSON for T.
func Get[T any](ctx context.Context, s *Store, key string, fallback T) T {
	raw, err := s.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.contain("get", key, err)
		}
		return fallback
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.contain("decode", key, err)
		return fallback
	}
	return v
}

// Set encodes value and writes it under key. Failures are logged and
// dropped.
func (s *Store) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.contain("encode", key, err)
		return
	}
	if err := s.backend.Save(ctx, key, raw); err != nil {
		s.contain("set", key, err)
	}
}

// Remove deletes keys. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.backend.Delete(ctx, keys...); err != nil && !errors.Is(err, ErrNotFound) {
		s.contain("remove", keys[0], err, zap.Strings("keys", keys))
	}
}

// Ping checks the backend is reachable; used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) contain(op, key string, err error, fields ...zap.Field) {
	obs.ObserveStoreError(op)
	fields = append(fields, zap.String("op", op), zap.String("key", key), zap.Error(err))
	s.log.Warn("store operation failed", fields...)
}
