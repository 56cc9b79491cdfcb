package httpserver

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-cart/internal/coordinator"
	"storefront-cart/internal/events"
	"storefront-cart/internal/gateway"
	"storefront-cart/internal/gueststore"
	"storefront-cart/internal/localstore"
	"storefront-cart/internal/notify"
	"storefront-cart/internal/session"
)

// client is one browser session's cart stack: its own storage file, event
// bus, session state and coordinator. This is the server-side stand-in for
// what runs inside a single tab of the storefront.
type client struct {
	coordinator *coordinator.Coordinator
	session     *session.Store
	watcher     *localstore.Watcher
	lastSeen    time.Time
}

// clientRegistry hands out the cart stack for a browser session ID,
// creating it on first contact.
type clientRegistry struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*client
}

func newClientRegistry(deps Deps) *clientRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &clientRegistry{
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
	}
}

// NewSessionID mints the opaque browser-session identifier carried in the
// X-Guest-Session header.
func NewSessionID() string {
	return uuid.NewString()
}

// Get returns the cart stack for sessionID, building it on first use.
func (r *clientRegistry) Get(sessionID string) *client {
	r.mu.RLock()
	c, ok := r.clients[sessionID]
	r.mu.RUnlock()
	if ok {
		r.touch(c)
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[sessionID]; ok {
		c.lastSeen = time.Now()
		return c
	}
	c = r.build(sessionID)
	r.clients[sessionID] = c
	return c
}

func (r *clientRegistry) touch(c *client) {
	r.mu.Lock()
	c.lastSeen = time.Now()
	r.mu.Unlock()
}

func (r *clientRegistry) build(sessionID string) *client {
	cfg := r.deps.Config
	logger := r.deps.Logger.With("session", sessionID)

	bus := events.NewBus()
	storage := localstore.New(filepath.Join(cfg.StorageDir, sessionID+".json"), logger)
	sess := session.NewStore(storage, r.deps.Verifier, bus, logger)
	guests := gueststore.New(storage, bus, logger)
	remote := gateway.New(cfg.CartBackendURL, sess, logger)
	notifier := notify.NewLogNotifier(logger)

	coord := coordinator.New(sess, guests, remote, bus, notifier, logger, coordinator.Options{
		MergeOnLogin:         cfg.MergeOnLogin,
		CountRefreshInterval: cfg.CountRefreshInterval,
	})
	coord.Start(r.ctx)

	var watcher *localstore.Watcher
	if cfg.WatchInterval > 0 {
		watcher = localstore.NewWatcher(storage, cfg.WatchInterval, func() {
			bus.Publish(events.TopicGuestCartChanged)
		})
		watcher.Start(r.ctx)
	}

	return &client{
		coordinator: coord,
		session:     sess,
		watcher:     watcher,
		lastSeen:    time.Now(),
	}
}

// Close tears down every session stack.
func (r *clientRegistry) Close() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		if c.watcher != nil {
			c.watcher.Stop()
		}
		c.coordinator.Close()
		delete(r.clients, id)
	}
}
