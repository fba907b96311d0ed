// Package favorites keeps per-device sets of favourite promotion ids.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

const keyPrefix = "favorites:"

// ErrNoDevice is returned when a write is attempted without a device id.
var ErrNoDevice = errors.New("favorites: missing device id")

// KV is the string store backing favorites. Each device owns one key whose
// value is a JSON array of promotion ids.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Store exposes favorites operations for a device.
type Store struct {
	kv     KV
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore builds a favorites store over kv.
func NewStore(kv KV, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logger.With("component", "favorites")}
}

func deviceKey(device string) string {
	return keyPrefix + strings.TrimSpace(device)
}

// List returns the device's favourite ids in insertion order. Storage
// failures degrade to an empty set.
func (s *Store) List(ctx context.Context, device string) []string {
	if strings.TrimSpace(device) == "" {
		return []string{}
	}
	ids, err := s.load(ctx, deviceKey(device))
	if err != nil {
		s.logger.Warn("load favorites failed", "device", device, "error", err)
		return []string{}
	}
	return ids
}

// IsFavorite reports whether id is in the device's set.
func (s *Store) IsFavorite(ctx context.Context, device, id string) bool {
	return slices.Contains(s.List(ctx, device), strings.TrimSpace(id))
}

// Toggle flips id in the device's set and reports whether it is now a favourite.
func (s *Store) Toggle(ctx context.Context, device, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if strings.TrimSpace(device) == "" {
		return false, ErrNoDevice
	}
	if id == "" {
		return false, fmt.Errorf("toggle favorite: empty promotion id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceKey(device)
	ids, err := s.load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	on := true
	if idx := slices.Index(ids, id); idx >= 0 {
		ids = slices.Delete(ids, idx, idx+1)
		on = false
	} else {
		ids = append(ids, id)
	}
	if err := s.store(ctx, key, ids); err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return on, nil
}

// Purge removes id from every device's set.
func (s *Store) Purge(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("purge favorites: %w", err)
	}
	for _, key := range keys {
		ids, err := s.load(ctx, key)
		if err != nil {
			return fmt.Errorf("purge favorites: %w", err)
		}
		idx := slices.Index(ids, id)
		if idx < 0 {
			continue
		}
		ids = slices.DeleteFunc(ids, func(v string) bool { return v == id })
		if err := s.store(ctx, key, ids); err != nil {
			return fmt.Errorf("purge favorites: %w", err)
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return decodeIDs(raw), nil
}

func (s *Store) store(ctx context.Context, key string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	return s.kv.Put(ctx, key, string(data))
}

// decodeIDs reads a stored set, keeping non-empty unique ids. Values that are
// not a JSON array decode to an empty set.
func decodeIDs(raw string) []string {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var id string
		switch v := item.(type) {
		case string:
			id = strings.TrimSpace(v)
		case float64:
			id = strings.TrimSpace(fmt.Sprint(v))
		}
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
