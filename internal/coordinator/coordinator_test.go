package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/events"
	"storefront-cart/internal/gueststore"
	"storefront-cart/internal/localstore"
)

type stubSession struct {
	mu            sync.Mutex
	authenticated bool
	userID        string
}

func (s *stubSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *stubSession) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *stubSession) login(bus *events.Bus, userID string) {
	s.mu.Lock()
	s.authenticated = true
	s.userID = userID
	s.mu.Unlock()
	bus.Publish(events.TopicSessionChanged)
}

func (s *stubSession) logout(bus *events.Bus) {
	s.mu.Lock()
	s.authenticated = false
	s.userID = ""
	s.mu.Unlock()
	bus.Publish(events.TopicSessionChanged)
}

// fakeRemote mimics the gateway contract, including its 404-to-empty-cart
// normalization.
type fakeRemote struct {
	mu            sync.Mutex
	carts         map[string]*domain.Cart
	failMutations bool
	getCalls      int
	addCalls      int
	validateCalls int
	countCalls    int
	validateGate  chan struct{} // when set, Validate blocks until closed
	addGate       chan struct{} // when set, AddItem blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{carts: make(map[string]*domain.Cart)}
}

func (f *fakeRemote) cart(userID string) *domain.Cart {
	if f.carts[userID] == nil {
		f.carts[userID] = domain.EmptyCart(userID)
	}
	return f.carts[userID]
}

func (f *fakeRemote) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	cart := f.cart(userID)
	clone := *cart
	clone.Items = append([]domain.CartItem(nil), cart.Items...)
	return &clone, nil
}

func (f *fakeRemote) AddItem(_ context.Context, userID, itemID string, quantity int, snapshot *domain.ProductSnapshot) error {
	if f.addGate != nil {
		<-f.addGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.failMutations {
		return errors.New("backend unavailable")
	}
	cart := f.cart(userID)
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity += quantity
			return nil
		}
	}
	item := domain.CartItem{ItemID: itemID, Quantity: quantity}
	if snapshot != nil {
		item.Product = *snapshot
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func (f *fakeRemote) UpdateItem(_ context.Context, userID, itemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMutations {
		return errors.New("backend unavailable")
	}
	cart := f.cart(userID)
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity = quantity
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRemote) RemoveItem(_ context.Context, userID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMutations {
		return errors.New("backend unavailable")
	}
	cart := f.cart(userID)
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ItemID != itemID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return nil
}

func (f *fakeRemote) ClearCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMutations {
		return errors.New("backend unavailable")
	}
	f.cart(userID).Items = nil
	return nil
}

func (f *fakeRemote) Validate(_ context.Context, userID string) (bool, error) {
	if f.validateGate != nil {
		<-f.validateGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	return f.cart(userID).ItemCount() > 0, nil
}

func (f *fakeRemote) ItemCount(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return f.cart(userID).ItemCount(), nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, message)
}

func (n *recordingNotifier) lastSuccess() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.successes) == 0 {
		return ""
	}
	return n.successes[len(n.successes)-1]
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failures)
}

type fixture struct {
	coord    *Coordinator
	remote   *fakeRemote
	session  *stubSession
	bus      *events.Bus
	guest    *gueststore.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	bus := events.NewBus()
	storage := localstore.New(filepath.Join(t.TempDir(), "storage.json"), logger)
	guest := gueststore.New(storage, bus, logger)
	remote := newFakeRemote()
	sess := &stubSession{}
	notifier := &recordingNotifier{}

	coord := New(sess, guest, remote, bus, notifier, logger, opts)
	t.Cleanup(coord.Close)

	return &fixture{
		coord:    coord,
		remote:   remote,
		session:  sess,
		bus:      bus,
		guest:    guest,
		notifier: notifier,
	}
}

func eggs() *domain.ProductSnapshot {
	return &domain.ProductSnapshot{Name: "Eggs", PriceCents: 450}
}

func TestGuestAddRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	res := f.coord.AddItem(ctx, "42", 3, eggs())
	if !res.Success {
		t.Fatalf("guest add failed: %v", res.Err)
	}

	view := f.coord.View(ctx)
	if view.Cart != nil {
		t.Fatalf("guest view must not present an authenticated cart")
	}
	if view.GuestCart == nil {
		t.Fatalf("guest cart missing from view")
	}
	item, ok := view.GuestCart.FindItem("42")
	if !ok || item.Quantity != 3 {
		t.Fatalf("expected item 42 qty 3, got %+v", item)
	}
	if view.ItemCount != 3 {
		t.Fatalf("expected item count 3, got %d", view.ItemCount)
	}
	if msg := f.notifier.lastSuccess(); !strings.Contains(msg, "Eggs") {
		t.Fatalf("success notification should name the item, got %q", msg)
	}
}

func TestAuthenticatedAddRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")

	res := f.coord.AddItem(ctx, "42", 2, eggs())
	if !res.Success {
		t.Fatalf("add failed: %v", res.Err)
	}

	view := f.coord.View(ctx)
	if view.GuestCart != nil {
		t.Fatalf("authenticated view must not present the guest cart")
	}
	item, ok := view.Cart.FindItem("42")
	if !ok || item.Quantity != 2 {
		t.Fatalf("expected item 42 qty 2, got %+v", item)
	}
}

func TestUpdateToZeroEqualsRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("guest", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.coord.AddItem(ctx, "42", 3, eggs())
		if res := f.coord.UpdateItem(ctx, "42", 0); !res.Success {
			t.Fatalf("update to zero failed: %v", res.Err)
		}
		if _, ok := f.coord.View(ctx).GuestCart.FindItem("42"); ok {
			t.Fatalf("item still present after quantity 0 update")
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.session.login(f.bus, "user-1")
		f.coord.AddItem(ctx, "42", 3, eggs())
		if res := f.coord.UpdateItem(ctx, "42", 0); !res.Success {
			t.Fatalf("update to zero failed: %v", res.Err)
		}
		if _, ok := f.coord.View(ctx).Cart.FindItem("42"); ok {
			t.Fatalf("item still present after quantity 0 update")
		}
		if f.remote.cart("user-1").ItemCount() != 0 {
			t.Fatalf("backend cart should be empty")
		}
	})
}

func TestItemCountIsSumOfQuantities(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Options{})
	f.coord.AddItem(ctx, "42", 3, eggs())
	f.coord.AddItem(ctx, "43", 4, &domain.ProductSnapshot{Name: "Milk"})
	if view := f.coord.View(ctx); view.ItemCount != 7 {
		t.Fatalf("guest: expected count 7, got %d", view.ItemCount)
	}

	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 2, eggs())
	f.coord.AddItem(ctx, "43", 5, nil)
	if view := f.coord.View(ctx); view.ItemCount != 7 {
		t.Fatalf("authenticated: expected count 7, got %d", view.ItemCount)
	}
}

func TestRefetchIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 2, eggs())

	if res := f.coord.RefetchCart(ctx); !res.Success {
		t.Fatalf("first refetch failed: %v", res.Err)
	}
	first := f.coord.View(ctx)
	if res := f.coord.RefetchCart(ctx); !res.Success {
		t.Fatalf("second refetch failed: %v", res.Err)
	}
	second := f.coord.View(ctx)

	if !reflect.DeepEqual(first.Cart.Items, second.Cart.Items) {
		t.Fatalf("refetch changed items: %+v vs %+v", first.Cart.Items, second.Cart.Items)
	}
	if first.ItemCount != second.ItemCount {
		t.Fatalf("refetch changed count: %d vs %d", first.ItemCount, second.ItemCount)
	}
}

func TestLoginSwitchesToRemoteCartWithoutMerge(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.coord.AddItem(ctx, "42", 3, eggs())
	f.session.login(f.bus, "user-1")

	view := f.coord.View(ctx)
	if view.GuestCart != nil {
		t.Fatalf("guest cart still presented after login")
	}
	if view.Cart == nil {
		t.Fatalf("authenticated cart missing after login")
	}
	if _, ok := view.Cart.FindItem("42"); ok {
		t.Fatalf("guest item silently merged into the server cart")
	}
	if !f.guest.Cart().IsEmpty() {
		t.Fatalf("guest cart not cleared on login")
	}
}

func TestMergeOnLoginReplaysGuestItems(t *testing.T) {
	f := newFixture(t, Options{MergeOnLogin: true})
	ctx := context.Background()

	f.coord.AddItem(ctx, "42", 3, eggs())
	f.session.login(f.bus, "user-1")

	view := f.coord.View(ctx)
	item, ok := view.Cart.FindItem("42")
	if !ok || item.Quantity != 3 {
		t.Fatalf("guest item not merged, got %+v", view.Cart.Items)
	}
	if item.Product.Name != "Eggs" {
		t.Fatalf("merge dropped the product snapshot: %+v", item.Product)
	}
	if !f.guest.Cart().IsEmpty() {
		t.Fatalf("guest cart should be cleared after merge")
	}
}

func TestLogoutRestoresGuestView(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 2, eggs())
	f.session.logout(f.bus)

	view := f.coord.View(ctx)
	if view.Cart != nil {
		t.Fatalf("server cart still presented after logout")
	}
	if view.GuestCart == nil {
		t.Fatalf("guest cart missing after logout")
	}
	if view.ItemCount != 0 {
		t.Fatalf("expected empty guest cart after logout, got count %d", view.ItemCount)
	}
}

func TestEmptyRemoteCartNormalized(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")

	view := f.coord.View(ctx)
	if view.Cart == nil {
		t.Fatalf("expected empty cart view, got nil")
	}
	if !view.Cart.IsEmpty() || view.Cart.ItemCount() != 0 || view.Cart.TotalCents != 0 {
		t.Fatalf("expected zeroed empty cart, got %+v", view.Cart)
	}
}

func TestFailedMutationPreservesPriorView(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 2, eggs())

	before := f.coord.View(ctx)
	f.remote.failMutations = true

	res := f.coord.AddItem(ctx, "43", 1, nil)
	if res.Success {
		t.Fatalf("expected failure result")
	}
	if res.Err == nil {
		t.Fatalf("failure result must carry the error")
	}

	after := f.coord.View(ctx)
	if !reflect.DeepEqual(before.Cart.Items, after.Cart.Items) {
		t.Fatalf("failed mutation changed the view: %+v vs %+v", before.Cart.Items, after.Cart.Items)
	}
	if f.notifier.errorCount() == 0 {
		t.Fatalf("expected an error notification")
	}
}

func TestOptimisticPatchVisibleWhileMutationInFlight(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")
	f.coord.View(ctx) // initial fetch

	gate := make(chan struct{})
	f.remote.addGate = gate

	done := make(chan domain.Result)
	go func() {
		done <- f.coord.AddItem(ctx, "42", 2, eggs())
	}()

	// The optimistic patch lands before the remote call resolves.
	deadline := time.After(2 * time.Second)
	for {
		f.coord.mu.RLock()
		_, ok := f.coord.view.Cart.FindItem("42")
		f.coord.mu.RUnlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("optimistic item never appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(gate)
	if res := <-done; !res.Success {
		t.Fatalf("add failed: %v", res.Err)
	}
	// Confirmed state replaced the optimistic patch wholesale.
	if item, ok := f.coord.View(ctx).Cart.FindItem("42"); !ok || item.Quantity != 2 {
		t.Fatalf("confirmed item missing after resolution")
	}
}

func TestConcurrentValidateCallsCollapse(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 1, eggs())

	gate := make(chan struct{})
	f.remote.validateGate = gate

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			valid, err := f.coord.ValidateCart(ctx)
			if err != nil {
				t.Errorf("validate failed: %v", err)
			}
			results[i] = valid
		}(i)
	}

	// Let both calls join the in-flight singleflight before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if f.remote.validateCalls != 1 {
		t.Fatalf("expected exactly one backend validation call, got %d", f.remote.validateCalls)
	}
	if !results[0] || !results[1] {
		t.Fatalf("both callers should see the shared result")
	}
}

func TestGuestValidateNeverHitsBackend(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	valid, err := f.coord.ValidateCart(ctx)
	if err != nil || valid {
		t.Fatalf("empty guest cart should be invalid, got %v %v", valid, err)
	}
	f.coord.AddItem(ctx, "42", 1, eggs())
	valid, err = f.coord.ValidateCart(ctx)
	if err != nil || !valid {
		t.Fatalf("non-empty guest cart should validate, got %v %v", valid, err)
	}
	if f.remote.validateCalls != 0 {
		t.Fatalf("guest validation must not touch the gateway")
	}
}

func TestRemoveItemNameLookupIsBestEffort(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 1, eggs())

	if res := f.coord.RemoveItem(ctx, "42"); !res.Success {
		t.Fatalf("remove failed: %v", res.Err)
	}
	if msg := f.notifier.lastSuccess(); !strings.Contains(msg, "Eggs") {
		t.Fatalf("expected item name in message, got %q", msg)
	}

	// Item unknown to the snapshot: the operation still succeeds.
	if res := f.coord.RemoveItem(ctx, "unknown"); !res.Success {
		t.Fatalf("remove of unknown item should not fail the operation: %v", res.Err)
	}
}

func TestClearCartBothPaths(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Options{})
	f.coord.AddItem(ctx, "42", 3, eggs())
	if res := f.coord.ClearCart(ctx); !res.Success {
		t.Fatalf("guest clear failed: %v", res.Err)
	}
	if f.coord.View(ctx).ItemCount != 0 {
		t.Fatalf("guest cart not emptied")
	}

	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 3, eggs())
	if res := f.coord.ClearCart(ctx); !res.Success {
		t.Fatalf("clear failed: %v", res.Err)
	}
	if view := f.coord.View(ctx); !view.Cart.IsEmpty() {
		t.Fatalf("server cart not emptied: %+v", view.Cart.Items)
	}
}

func TestBackgroundCountRefresher(t *testing.T) {
	f := newFixture(t, Options{CountRefreshInterval: 10 * time.Millisecond})
	ctx := context.Background()
	f.session.login(f.bus, "user-1")
	f.coord.AddItem(ctx, "42", 3, eggs())

	f.coord.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	f.coord.Close()

	f.remote.mu.Lock()
	calls := f.remote.countCalls
	f.remote.mu.Unlock()
	if calls == 0 {
		t.Fatalf("refresher never fetched the count")
	}

	// Stopped: no further fetches.
	time.Sleep(30 * time.Millisecond)
	f.remote.mu.Lock()
	after := f.remote.countCalls
	f.remote.mu.Unlock()
	if after != calls {
		t.Fatalf("refresher still running after Close")
	}
}

func TestGuestCartChangeEventReloadsView(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// A mutation made directly against the store (another tab) still shows
	// up in the coordinator's view via the change event.
	f.guest.AddItem("42", 2, domain.ProductSnapshot{Name: "Eggs"})

	view := f.coord.View(ctx)
	if view.ItemCount != 2 {
		t.Fatalf("expected reloaded count 2, got %d", view.ItemCount)
	}
}
