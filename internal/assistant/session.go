package assistant

import (
	"context"
	"errors"
	"time"

	"salesql/internal/cache"
	"salesql/internal/salesmodel"
)

const (
	sessionKeyPrefix  = "salesql:session:"
	DefaultSessionTTL = 30 * time.Minute
)

// Sessions remembers, per session ID, the chosen route and a question that is
// waiting for a route answer.
type Sessions struct {
	store cache.Store
	ttl   time.Duration
}

// NewSessions creates a session store. A nil store disables session memory.
func NewSessions(store cache.Store, ttl time.Duration) *Sessions {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{store: store, ttl: ttl}
}

func routeKey(id string) string   { return sessionKeyPrefix + id + ":route" }
func pendingKey(id string) string { return sessionKeyPrefix + id + ":pending" }

// Route returns the remembered route.
func (s *Sessions) Route(ctx context.Context, id string) (salesmodel.Route, bool, error) {
	if s == nil || id == "" {
		return salesmodel.RouteUnknown, false, nil
	}
	v, err := s.store.Get(ctx, routeKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return salesmodel.RouteUnknown, false, nil
	}
	if err != nil {
		return salesmodel.RouteUnknown, false, err
	}
	route, ok := salesmodel.ParseRoute(string(v))
	return route, ok, nil
}

// SetRoute remembers the route for the session.
func (s *Sessions) SetRoute(ctx context.Context, id string, route salesmodel.Route) error {
	if s == nil || id == "" {
		return nil
	}
	return s.store.Set(ctx, routeKey(id), []byte(route), s.ttl)
}

// TakePending returns and clears the question awaiting a route.
func (s *Sessions) TakePending(ctx context.Context, id string) (string, bool, error) {
	if s == nil || id == "" {
		return "", false, nil
	}
	v, err := s.store.Get(ctx, pendingKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := s.store.Delete(ctx, pendingKey(id)); err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// SetPending stores a question until the user picks a route.
func (s *Sessions) SetPending(ctx context.Context, id, question string) error {
	if s == nil || id == "" {
		return nil
	}
	return s.store.Set(ctx, pendingKey(id), []byte(question), s.ttl)
}
