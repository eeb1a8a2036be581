// Package session keeps one Controller per browser session.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/dmorgan81/imagine/internal/controller"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"
)

// Factory builds the controller for a new session.
type Factory func(ctx context.Context) *controller.Controller

type entry struct {
	controller *controller.Controller
	mu         sync.Mutex
	lastSeen   time.Time
}

func (e *entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *entry) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

type Manager struct {
	ctx      context.Context
	factory  Factory
	ttl      time.Duration
	now      func() time.Time
	sessions *xsync.MapOf[string, *entry]
	cron     *cron.Cron
}

func NewManager(ctx context.Context, factory Factory, ttl time.Duration) *Manager {
	return &Manager{
		ctx:      ctx,
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		sessions: xsync.NewMapOf[string, *entry](),
	}
}

// Get returns the controller for id, starting a new session when id is empty or
// unknown. The returned id is the one the caller should keep using.
func (m *Manager) Get(id string) (string, *controller.Controller, error) {
	now := m.now()
	if id != "" {
		if e, ok := m.sessions.Load(id); ok {
			e.touch(now)
			return id, e.controller, nil
		}
	}

	id, err := newID()
	if err != nil {
		return "", nil, err
	}
	e, _ := m.sessions.LoadOrCompute(id, func() *entry {
		return &entry{controller: m.factory(m.ctx), lastSeen: now}
	})
	log.FromContextOrDiscard(m.ctx).Info("session started", "session", id)
	return id, e.controller, nil
}

func (m *Manager) Len() int {
	return m.sessions.Size()
}

// Sweep ends every session idle for longer than the TTL.
func (m *Manager) Sweep() error {
	now := m.now()
	var expired []string
	m.sessions.Range(func(id string, e *entry) bool {
		if e.idleSince(now) > m.ttl {
			expired = append(expired, id)
		}
		return true
	})

	var result *multierror.Error
	for _, id := range expired {
		if err := m.end(id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(expired) > 0 {
		log.FromContextOrDiscard(m.ctx).Info("swept idle sessions", "count", len(expired), "remaining", m.Len())
	}
	return result.ErrorOrNil()
}

func (m *Manager) end(id string) error {
	e, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return e.controller.Close()
}

// Start schedules Sweep on the given cron spec, e.g. "@every 1m".
func (m *Manager) Start(spec string) error {
	logger := log.FromContextOrDiscard(m.ctx).WithGroup("session")
	m.cron = cron.New()
	_, err := m.cron.AddFunc(spec, func() {
		if err := m.Sweep(); err != nil {
			logger.Warn("sweeping sessions", log.Err(err))
		}
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Shutdown stops the sweeper and ends every session.
func (m *Manager) Shutdown() error {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}

	var result *multierror.Error
	ids := make([]string, 0, m.Len())
	m.sessions.Range(func(id string, _ *entry) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		if err := m.end(id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func newID() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
