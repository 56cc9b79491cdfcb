package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/events"
	"storefront-cart/internal/notify"
)

// singleflight keys for the call families that get silently de-duplicated
// when issued concurrently.
const (
	sfValidate = "validate"
	sfCount    = "count"
)

type remoteGateway interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, itemID string, quantity int, snapshot *domain.ProductSnapshot) error
	UpdateItem(ctx context.Context, userID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, userID, itemID string) error
	ClearCart(ctx context.Context, userID string) error
	Validate(ctx context.Context, userID string) (bool, error)
	ItemCount(ctx context.Context, userID string) (int, error)
}

type guestStore interface {
	Cart() *domain.GuestCart
	ItemCount() int
	AddItem(itemID string, quantity int, snapshot domain.ProductSnapshot) domain.Result
	UpdateItemQuantity(itemID string, quantity int) domain.Result
	RemoveItem(itemID string) domain.Result
	Clear() domain.Result
}

type sessionState interface {
	IsAuthenticated() bool
	UserID() string
}

// View is the single cart state presented to callers. Exactly one of Cart
// and GuestCart is non-nil: the authenticated cart while a user is logged
// in, the guest cart otherwise.
type View struct {
	Cart      *domain.Cart
	GuestCart *domain.GuestCart
	ItemCount int
	Loading   bool
	Err       error
}

// Options tune coordinator behavior.
type Options struct {
	// MergeOnLogin replays guest items into the server cart when the
	// session becomes authenticated, instead of discarding them.
	MergeOnLogin bool
	// CountRefreshInterval drives the background item-count refresh that
	// keeps a persistent badge approximately fresh. Zero disables it.
	CountRefreshInterval time.Duration
	// RemoteTimeout bounds the internally-triggered remote calls (session
	// transitions, background refresh).
	RemoteTimeout time.Duration
}

// Coordinator is the single source of truth for "the current cart". Every
// operation routes to the guest store or the remote gateway depending on
// session state, and every mutation's completion invalidates and re-fetches
// rather than trusting the optimistic local patch as final truth.
type Coordinator struct {
	session  sessionState
	guest    guestStore
	remote   remoteGateway
	notifier notify.Notifier
	logger   *zap.SugaredLogger
	opts     Options

	sfg singleflight.Group

	mu       sync.RWMutex
	view     View
	lastGood *domain.Cart // last server-confirmed cart, kept on failure
	fetched  bool         // remote cart loaded at least once this session

	unsubSession func()
	unsubGuest   func()
	refresher    *countRefresher
	closeOnce    sync.Once
}

func New(session sessionState, guest guestStore, remote remoteGateway, bus *events.Bus, notifier notify.Notifier, logger *zap.SugaredLogger, opts Options) *Coordinator {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	c := &Coordinator{
		session:  session,
		guest:    guest,
		remote:   remote,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
	c.unsubSession = bus.Subscribe(events.TopicSessionChanged, c.onSessionChanged)
	c.unsubGuest = bus.Subscribe(events.TopicGuestCartChanged, c.onGuestCartChanged)

	if !session.IsAuthenticated() {
		c.reloadGuestView()
	}
	// The authenticated cart is fetched lazily on first need.

	if opts.CountRefreshInterval > 0 {
		c.refresher = newCountRefresher(c, opts.CountRefreshInterval)
	}
	return c
}

// Start launches the background count refresher, when configured.
func (c *Coordinator) Start(ctx context.Context) {
	if c.refresher != nil {
		c.refresher.Start(ctx)
	}
}

// Close stops the refresher and detaches from the event bus.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		if c.refresher != nil {
			c.refresher.Stop()
		}
		c.unsubSession()
		c.unsubGuest()
	})
}

// View returns the current cart state, lazily fetching the authenticated
// cart the first time it is needed.
func (c *Coordinator) View(ctx context.Context) View {
	if c.session.IsAuthenticated() {
		c.ensureCart(ctx)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// AddItem adds quantity of itemID to the active cart. The snapshot is
// required for guest adds (there is no backend join to recover it later)
// and passed through to the backend otherwise. Quantity constraints are the
// backend's/store's to enforce.
func (c *Coordinator) AddItem(ctx context.Context, itemID string, quantity int, snapshot *domain.ProductSnapshot) domain.Result {
	name := ""
	if snapshot != nil {
		name = snapshot.Name
	}

	if !c.session.IsAuthenticated() {
		var snap domain.ProductSnapshot
		if snapshot != nil {
			snap = *snapshot
		}
		res := c.guest.AddItem(itemID, quantity, snap)
		c.afterGuestMutation(res, addedMessage(name), "Could not add item to cart")
		return res
	}

	userID := c.session.UserID()
	c.applyOptimistic(func(cart *domain.Cart) {
		for i := range cart.Items {
			if cart.Items[i].ItemID == itemID {
				cart.Items[i].Quantity += quantity
				return
			}
		}
		item := domain.CartItem{ItemID: itemID, Quantity: quantity, AddedAt: time.Now().UTC()}
		if snapshot != nil {
			item.Product = *snapshot
		}
		cart.Items = append(cart.Items, item)
	})

	if err := c.remote.AddItem(ctx, userID, itemID, quantity, snapshot); err != nil {
		return c.remoteFailed("add item", err, "Could not add item to cart")
	}
	c.remoteSucceeded(ctx, addedMessage(name))
	return domain.OK()
}

// UpdateItem sets the quantity of itemID. Zero is a removal signal on both
// paths.
func (c *Coordinator) UpdateItem(ctx context.Context, itemID string, quantity int) domain.Result {
	if quantity == 0 {
		return c.RemoveItem(ctx, itemID)
	}

	if !c.session.IsAuthenticated() {
		res := c.guest.UpdateItemQuantity(itemID, quantity)
		c.afterGuestMutation(res, "Cart updated", "Could not update cart")
		return res
	}

	userID := c.session.UserID()
	c.applyOptimistic(func(cart *domain.Cart) {
		for i := range cart.Items {
			if cart.Items[i].ItemID == itemID {
				cart.Items[i].Quantity = quantity
				return
			}
		}
	})

	if err := c.remote.UpdateItem(ctx, userID, itemID, quantity); err != nil {
		return c.remoteFailed("update item", err, "Could not update cart")
	}
	c.remoteSucceeded(ctx, "Cart updated")
	return domain.OK()
}

// RemoveItem removes itemID from the active cart. The display name for the
// success message is looked up in the last-known cart snapshot; its absence
// never fails the operation.
func (c *Coordinator) RemoveItem(ctx context.Context, itemID string) domain.Result {
	if !c.session.IsAuthenticated() {
		name := ""
		if item, ok := c.guest.Cart().FindItem(itemID); ok {
			name = item.Product.Name
		}
		res := c.guest.RemoveItem(itemID)
		c.afterGuestMutation(res, removedMessage(name), "Could not remove item from cart")
		return res
	}

	userID := c.session.UserID()
	name := ""
	c.mu.RLock()
	if item, ok := c.view.Cart.FindItem(itemID); ok {
		name = item.Product.Name
	}
	c.mu.RUnlock()

	c.applyOptimistic(func(cart *domain.Cart) {
		kept := cart.Items[:0]
		for _, item := range cart.Items {
			if item.ItemID != itemID {
				kept = append(kept, item)
			}
		}
		cart.Items = kept
	})

	if err := c.remote.RemoveItem(ctx, userID, itemID); err != nil {
		return c.remoteFailed("remove item", err, "Could not remove item from cart")
	}
	c.remoteSucceeded(ctx, removedMessage(name))
	return domain.OK()
}

// ClearCart empties the active cart representation.
func (c *Coordinator) ClearCart(ctx context.Context) domain.Result {
	if !c.session.IsAuthenticated() {
		res := c.guest.Clear()
		c.afterGuestMutation(res, "Cart cleared", "Could not clear cart")
		return res
	}

	userID := c.session.UserID()
	c.applyOptimistic(func(cart *domain.Cart) {
		cart.Items = nil
		cart.SubtotalCents = 0
		cart.DiscountCents = 0
		cart.TotalCents = 0
	})

	if err := c.remote.ClearCart(ctx, userID); err != nil {
		return c.remoteFailed("clear cart", err, "Could not clear cart")
	}
	c.remoteSucceeded(ctx, "Cart cleared")
	return domain.OK()
}

// RefetchCart forces a fresh fetch from the active backend, bypassing the
// cached view. A read failure keeps the last-known-good view in place.
func (c *Coordinator) RefetchCart(ctx context.Context) domain.Result {
	if !c.session.IsAuthenticated() {
		c.reloadGuestView()
		return domain.OK()
	}
	if err := c.fetchRemoteCart(ctx); err != nil {
		return domain.Fail(err)
	}
	return domain.OK()
}

// ValidateCart reports whether the cart is checkout-ready. Guests have no
// server-side stock or price revalidation, so the guest path approximates
// readiness as "cart is not empty" and never touches the gateway.
// Concurrent calls are collapsed into a single backend request.
func (c *Coordinator) ValidateCart(ctx context.Context) (bool, error) {
	if !c.session.IsAuthenticated() {
		return c.guest.ItemCount() > 0, nil
	}
	userID := c.session.UserID()
	v, err, _ := c.sfg.Do(sfValidate, func() (interface{}, error) {
		return c.remote.Validate(ctx, userID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ItemCount returns the active cart's item count, hitting the backend on
// the authenticated path. Concurrent fetches are de-duplicated; a fetch
// failure falls back to the cached view's count.
func (c *Coordinator) ItemCount(ctx context.Context) int {
	if !c.session.IsAuthenticated() {
		return c.guest.ItemCount()
	}
	userID := c.session.UserID()
	v, err, _ := c.sfg.Do(sfCount, func() (interface{}, error) {
		return c.remote.ItemCount(ctx, userID)
	})
	if err != nil {
		c.logger.Warnw("item count fetch failed, serving cached count", "error", err)
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.view.ItemCount
	}
	count := v.(int)
	c.mu.Lock()
	c.view.ItemCount = count
	c.mu.Unlock()
	return count
}

// ensureCart loads the authenticated cart once per session, on first need.
func (c *Coordinator) ensureCart(ctx context.Context) {
	c.mu.RLock()
	done := c.fetched
	c.mu.RUnlock()
	if done {
		return
	}
	if err := c.fetchRemoteCart(ctx); err != nil {
		c.logger.Warnw("initial cart fetch failed", "error", err)
	}
}

// fetchRemoteCart replaces the cached view wholesale with the backend's
// authoritative cart. On failure the previous view survives untouched.
func (c *Coordinator) fetchRemoteCart(ctx context.Context) error {
	userID := c.session.UserID()

	c.mu.Lock()
	c.view.Loading = true
	c.mu.Unlock()

	cart, err := c.remote.GetCart(ctx, userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.Loading = false
	if err != nil {
		c.view.Err = err
		return err
	}
	c.lastGood = cart
	c.fetched = true
	c.view = View{Cart: cart, ItemCount: cart.ItemCount()}
	return nil
}

// applyOptimistic patches a copy of the displayed cart so the change is
// visible immediately. The server's response replaces it wholesale either
// way once the mutation resolves.
func (c *Coordinator) applyOptimistic(patch func(*domain.Cart)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := c.view.Cart
	if base == nil {
		base = c.lastGood
	}
	if base == nil {
		base = domain.EmptyCart(c.session.UserID())
	}
	next := cloneCart(base)
	patch(next)
	c.view.Cart = next
	c.view.GuestCart = nil
	c.view.ItemCount = next.ItemCount()
}

func (c *Coordinator) remoteSucceeded(ctx context.Context, message string) {
	// The mutation completing is the invalidation trigger: re-fetch and let
	// the server response replace the optimistic patch.
	if err := c.fetchRemoteCart(ctx); err != nil {
		c.logger.Warnw("cart refetch after mutation failed", "error", err)
	}
	c.notifier.Success(message)
}

func (c *Coordinator) remoteFailed(op string, err error, message string) domain.Result {
	c.logger.Errorw("remote cart operation failed", "op", op, "error", err)
	c.mu.Lock()
	restored := c.lastGood
	if restored == nil {
		restored = domain.EmptyCart(c.session.UserID())
	}
	c.view.Cart = restored
	c.view.ItemCount = restored.ItemCount()
	c.view.Err = err
	c.mu.Unlock()
	c.notifier.Error(message)
	return domain.Fail(err)
}

func (c *Coordinator) afterGuestMutation(res domain.Result, successMsg, errorMsg string) {
	if !res.Success {
		c.logger.Errorw("guest cart operation failed", "error", res.Err)
		c.notifier.Error(errorMsg)
		return
	}
	// The bus already triggered a reload, but a failed storage notification
	// must not leave the view stale.
	c.reloadGuestView()
	c.notifier.Success(successMsg)
}

func (c *Coordinator) reloadGuestView() {
	cart := c.guest.Cart()
	c.mu.Lock()
	c.view = View{GuestCart: cart, ItemCount: cart.ItemCount()}
	c.mu.Unlock()
}

// onSessionChanged flips the active representation. Login switches to the
// remote cart and clears (or merges) the guest cart; logout drops the
// server view-model and reloads the guest cart from storage.
func (c *Coordinator) onSessionChanged() {
	if c.session.IsAuthenticated() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RemoteTimeout)
		defer cancel()

		if c.opts.MergeOnLogin {
			c.mergeGuestCart(ctx)
		}
		if res := c.guest.Clear(); !res.Success {
			c.logger.Warnw("clear guest cart on login failed", "error", res.Err)
		}

		c.mu.Lock()
		c.fetched = false
		c.view = View{Cart: domain.EmptyCart(c.session.UserID())}
		c.mu.Unlock()

		if err := c.fetchRemoteCart(ctx); err != nil {
			c.logger.Warnw("cart fetch on login failed", "error", err)
		}
		return
	}

	c.mu.Lock()
	c.lastGood = nil
	c.fetched = false
	c.mu.Unlock()
	c.reloadGuestView()
}

// mergeGuestCart replays guest items into the server cart. Item-level
// failures are logged and skipped; the merge is best-effort.
func (c *Coordinator) mergeGuestCart(ctx context.Context) {
	userID := c.session.UserID()
	items := c.guest.Cart().Items
	for _, item := range items {
		snapshot := item.Product
		if err := c.remote.AddItem(ctx, userID, item.ItemID, item.Quantity, &snapshot); err != nil {
			c.logger.Warnw("merge guest item failed", "itemId", item.ItemID, "error", err)
		}
	}
	if len(items) > 0 {
		c.notifier.Success("Your cart has been carried over")
	}
}

func (c *Coordinator) onGuestCartChanged() {
	if c.session.IsAuthenticated() {
		return
	}
	c.reloadGuestView()
}

func cloneCart(cart *domain.Cart) *domain.Cart {
	next := *cart
	next.Items = make([]domain.CartItem, len(cart.Items))
	copy(next.Items, cart.Items)
	return &next
}

func addedMessage(name string) string {
	if name == "" {
		return "Added item to cart"
	}
	return fmt.Sprintf("Added %s to cart", name)
}

func removedMessage(name string) string {
	if name == "" {
		return "Removed item from cart"
	}
	return fmt.Sprintf("Removed %s from cart", name)
}
