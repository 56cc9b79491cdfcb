package session

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/events"
	"storefront-cart/internal/localstore"
)

const storageKey = "session"

type persistedSession struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Store holds the authentication state the cart core depends on: whether a
// user is logged in and who they are. It is injected rather than read from
// ambient globals, persists across restarts through local storage, and
// publishes a session-changed event on every transition.
type Store struct {
	storage  *localstore.Store
	verifier *TokenVerifier
	bus      *events.Bus
	logger   *zap.SugaredLogger

	mu     sync.RWMutex
	token  string
	userID string
}

func NewStore(storage *localstore.Store, verifier *TokenVerifier, bus *events.Bus, logger *zap.SugaredLogger) *Store {
	s := &Store{
		storage:  storage,
		verifier: verifier,
		bus:      bus,
		logger:   logger,
	}
	s.restore()
	return s
}

// restore re-validates a persisted token on startup. Expired or tampered
// tokens degrade to an unauthenticated session.
func (s *Store) restore() {
	var persisted persistedSession
	if err := s.storage.Get(storageKey, &persisted); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warnw("read persisted session failed", "error", err)
		}
		return
	}
	userID, err := s.verifier.Verify(persisted.Token)
	if err != nil {
		s.logger.Infow("persisted session no longer valid, clearing", "error", err)
		if err := s.storage.Delete(storageKey); err != nil {
			s.logger.Warnw("clear stale session failed", "error", err)
		}
		return
	}
	s.token = persisted.Token
	s.userID = userID
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID != ""
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login verifies token, persists the session and announces the transition.
func (s *Store) Login(token string) error {
	userID, err := s.verifier.Verify(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.userID = userID
	s.mu.Unlock()

	if err := s.storage.Set(storageKey, persistedSession{Token: token, UserID: userID}); err != nil {
		s.logger.Warnw("persist session failed", "error", err)
	}
	s.bus.Publish(events.TopicSessionChanged)
	return nil
}

// Logout clears the session. The server cart is not deleted, only dropped
// from the client's view by the coordinator reacting to the event.
func (s *Store) Logout() {
	s.mu.Lock()
	wasAuthenticated := s.userID != ""
	s.token = ""
	s.userID = ""
	s.mu.Unlock()

	if !wasAuthenticated {
		return
	}
	if err := s.storage.Delete(storageKey); err != nil {
		s.logger.Warnw("clear persisted session failed", "error", err)
	}
	s.bus.Publish(events.TopicSessionChanged)
}
