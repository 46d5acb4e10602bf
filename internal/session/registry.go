package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/k1l1-bot/internal/tournament"
)

var ErrInvalidKey = errors.New("session key needs a room and a user")

// Key identifies one player's tournament inside one chat room.
type Key struct {
	Room string
	User string
}

func NewKey(room, user string) (Key, error) {
	k := Key{Room: strings.TrimSpace(room), User: strings.TrimSpace(user)}
	if k.Room == "" || k.User == "" {
		return Key{}, ErrInvalidKey
	}
	return k, nil
}

func (k Key) String() string { return k.Room + ":" + k.User }

// Factory builds the controller for a new key.
type Factory func(key Key) *tournament.Controller

type entry struct {
	ctrl     *tournament.Controller
	lastSeen time.Time
}

// Registry holds one controller per key and forgets the ones left idle longer
// than the TTL. Nothing is persisted; an evicted player simply starts over.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry

	factory Factory
	ttl     time.Duration
	now     func() time.Time
	onEvict func(Key, *tournament.Controller)
	logger  *zap.Logger
}

type Option func(*Registry)

func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithOnEvict is called outside the lock for every evicted or removed entry.
func WithOnEvict(fn func(Key, *tournament.Controller)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Key]*entry),
		factory: factory,
		ttl:     time.Hour,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the controller for key and refreshes its idle timer.
func (r *Registry) Get(key Key) (*tournament.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.ctrl, true
}

func (r *Registry) GetOrCreate(key Key) (ctrl *tournament.Controller, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.lastSeen = r.now()
		return e.ctrl, false
	}
	ctrl = r.factory(key)
	r.entries[key] = &entry{ctrl: ctrl, lastSeen: r.now()}
	r.logger.Debug("session_created", zap.Stringer("key", key))
	return ctrl, true
}

func (r *Registry) Remove(key Key) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if ok && r.onEvict != nil {
		r.onEvict(key, e.ctrl)
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts idle entries and returns how many were dropped.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	type evicted struct {
		key  Key
		ctrl *tournament.Controller
	}
	var out []evicted

	r.mu.Lock()
	for k, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			out = append(out, evicted{key: k, ctrl: e.ctrl})
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()

	for _, ev := range out {
		r.logger.Info("session_evicted", zap.Stringer("key", ev.key))
		if r.onEvict != nil {
			r.onEvict(ev.key, ev.ctrl)
		}
	}
	return len(out)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
