package gueststore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/events"
	"storefront-cart/internal/localstore"
)

const storageKey = "guest-cart"

// Store is the durable cart for unauthenticated visitors. Everything
// resolves against the local storage snapshot; there are no network calls.
// Every successful mutation is announced on the bus so other views (and
// other processes, via the storage watcher) reload.
type Store struct {
	storage *localstore.Store
	bus     *events.Bus
	logger  *zap.SugaredLogger

	mu sync.Mutex
}

func New(storage *localstore.Store, bus *events.Bus, logger *zap.SugaredLogger) *Store {
	return &Store{
		storage: storage,
		bus:     bus,
		logger:  logger,
	}
}

// Cart returns the persisted guest cart, creating an empty one (with a
// fresh stable session ID) if none exists yet. Malformed storage reads as
// an empty cart.
func (s *Store) Cart() *domain.GuestCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) Items() []domain.GuestCartItem {
	return s.Cart().Items
}

func (s *Store) ItemCount() int {
	return s.Cart().ItemCount()
}

// SessionID is generated on first use and persisted with the cart payload.
// It is stable for the lifetime of the storage entry.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.read()
	if err := s.write(cart); err != nil {
		s.logger.Warnw("persist guest session failed", "error", err)
	}
	return cart.SessionID
}

// AddItem appends the item, or accumulates quantity when it is already in
// the cart. The product snapshot is stored as-is; there is no live product
// join for guests.
func (s *Store) AddItem(itemID string, quantity int, snapshot domain.ProductSnapshot) domain.Result {
	if quantity <= 0 {
		return domain.Fail(domain.ErrInvalidQuantity)
	}

	s.mu.Lock()
	cart := s.read()
	now := time.Now().UTC()
	found := false
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, domain.GuestCartItem{
			ItemID:   itemID,
			Quantity: quantity,
			Product:  snapshot,
			AddedAt:  now,
		})
	}
	cart.UpdatedAt = now
	err := s.write(cart)
	s.mu.Unlock()

	return s.finish(err)
}

// UpdateItemQuantity sets the item's quantity. Zero removes the item.
func (s *Store) UpdateItemQuantity(itemID string, quantity int) domain.Result {
	if quantity < 0 {
		return domain.Fail(domain.ErrInvalidQuantity)
	}
	if quantity == 0 {
		return s.RemoveItem(itemID)
	}

	s.mu.Lock()
	cart := s.read()
	found := false
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return domain.Fail(domain.ErrNotFound)
	}
	cart.UpdatedAt = time.Now().UTC()
	err := s.write(cart)
	s.mu.Unlock()

	return s.finish(err)
}

func (s *Store) RemoveItem(itemID string) domain.Result {
	s.mu.Lock()
	cart := s.read()
	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ItemID == itemID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		s.mu.Unlock()
		return domain.Fail(domain.ErrNotFound)
	}
	cart.Items = kept
	cart.UpdatedAt = time.Now().UTC()
	err := s.write(cart)
	s.mu.Unlock()

	return s.finish(err)
}

// Clear empties the cart but keeps the session ID: the visitor is still the
// same browser session.
func (s *Store) Clear() domain.Result {
	s.mu.Lock()
	cart := s.read()
	cart.Items = []domain.GuestCartItem{}
	cart.UpdatedAt = time.Now().UTC()
	err := s.write(cart)
	s.mu.Unlock()

	return s.finish(err)
}

func (s *Store) read() *domain.GuestCart {
	var cart domain.GuestCart
	err := s.storage.Get(storageKey, &cart)
	if err == nil && cart.SessionID != "" {
		if cart.Items == nil {
			cart.Items = []domain.GuestCartItem{}
		}
		return &cart
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warnw("read guest cart failed, using empty cart", "error", err)
	}
	now := time.Now().UTC()
	return &domain.GuestCart{
		SessionID: uuid.NewString(),
		Items:     []domain.GuestCartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Store) write(cart *domain.GuestCart) error {
	return s.storage.Set(storageKey, cart)
}

func (s *Store) finish(err error) domain.Result {
	if err != nil {
		s.logger.Errorw("guest cart write failed", "error", err)
		return domain.Fail(err)
	}
	s.bus.Publish(events.TopicGuestCartChanged)
	return domain.OK()
}
