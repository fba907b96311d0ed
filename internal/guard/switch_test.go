package guard

import (
	"context"
	"sync"

	"pechincha/internal/session"
)

type switchResolver struct {
	mu  sync.Mutex
	res *session.Resolution
}

func (s *switchResolver) set(res session.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.res = &res
}

func (s *switchResolver) Resolve(context.Context, session.Credential) (session.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.res == nil {
		return *resolution(true, true, session.RoleAdmin, session.StatusActive), nil
	}
	return *s.res, nil
}

type memoryProfiles struct {
	mu    sync.Mutex
	items map[string]session.Profile
}

func (c *memoryProfiles) Get(_ context.Context, userID string) (session.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[userID]
	return p, ok
}

func (c *memoryProfiles) Set(_ context.Context, p session.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]session.Profile)
	}
	c.items[p.ID] = p
}

func (c *memoryProfiles) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
}
