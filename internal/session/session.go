// Package session holds per-user interaction state for the HTTP host: the
// uploaded table, its detected levels and the last render settings.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/metrics"
	"github.com/sells-group/regionmap/internal/pipeline"
	"github.com/sells-group/regionmap/internal/table"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Session is one user's state. The table is immutable; settings are copied
// in and out so no two callers share slices.
type Session struct {
	ID        string              `json:"id"`
	Table     *table.Table        `json:"table"`
	Detection geography.Detection `json:"detection"`
	CreatedAt time.Time           `json:"created_at"`

	mu       sync.Mutex
	settings pipeline.Settings
}

// Settings returns a copy of the last settings used by this session.
func (s *Session) Settings() pipeline.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySettings(s.settings)
}

// SetSettings replaces the session's settings.
func (s *Session) SetSettings(settings pipeline.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = copySettings(settings)
}

func copySettings(in pipeline.Settings) pipeline.Settings {
	out := in
	out.Colours = append([]string(nil), in.Colours...)
	out.Thresholds = append([]float64(nil), in.Thresholds...)
	return out
}

// Store keeps sessions in memory until they sit idle for the TTL.
type Store struct {
	items *gocache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewStore creates a store whose sessions expire after ttl without use.
func NewStore(ttl time.Duration) *Store {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	s := &Store{
		items: gocache.New(ttl, cleanup),
		ttl:   ttl,
		log:   zap.L().With(zap.String("component", "session")),
	}
	s.items.OnEvicted(func(id string, _ any) {
		metrics.ActiveSessions.Dec()
		s.log.Debug("session: evicted", zap.String("id", id))
	})
	return s
}

// Create starts a session for an uploaded table.
func (s *Store) Create(t *table.Table, det geography.Detection, settings pipeline.Settings) *Session {
	sess := &Session{
		ID:        uuid.New().String(),
		Table:     t,
		Detection: det,
		CreatedAt: time.Now().UTC(),
	}
	sess.SetSettings(settings)
	s.items.Set(sess.ID, sess, gocache.DefaultExpiration)
	metrics.ActiveSessions.Inc()

	s.log.Info("session: created",
		zap.String("id", sess.ID),
		zap.String("table", t.Name),
		zap.Int("rows", len(t.Rows)),
	)
	return sess
}

// Get returns a live session and restarts its idle timer.
func (s *Store) Get(id string) (*Session, error) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	sess := v.(*Session)
	s.items.Set(id, sess, gocache.DefaultExpiration)
	return sess, nil
}

// Delete ends a session.
func (s *Store) Delete(id string) error {
	if _, ok := s.items.Get(id); !ok {
		return ErrNotFound
	}
	s.items.Delete(id)
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.items.ItemCount()
}
