package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront-cart/internal/domain"
)

// TokenSource yields the bearer token for the current session.
type TokenSource interface {
	Token() string
}

// Gateway translates cart operations into REST calls against the
// authenticated cart backend. A circuit breaker sits in front of every
// call; a missing cart (404) is normalized to an empty cart, never an
// error, and never counts against the breaker.
type Gateway struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[httpResult]
	tokens  TokenSource
	logger  *zap.SugaredLogger
}

type httpResult struct {
	status int
	body   []byte
}

func New(baseURL string, tokens TokenSource, logger *zap.SugaredLogger) *Gateway {
	settings := gobreaker.Settings{
		Name:    "cart-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[httpResult](settings),
		tokens:  tokens,
		logger:  logger,
	}
}

// GetCart fetches the user's cart. No cart row on the backend is a normal
// condition for a user who never added anything: it comes back as an empty
// cart with zeroed aggregates.
func (g *Gateway) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	res, err := g.do(ctx, http.MethodGet, g.cartPath(userID), nil)
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusNotFound {
		return domain.EmptyCart(userID), nil
	}
	if res.status != http.StatusOK {
		return nil, unexpectedStatus(res.status)
	}
	var w wireCart
	if err := json.Unmarshal(res.body, &w); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return fromWireCart(w), nil
}

func (g *Gateway) AddItem(ctx context.Context, userID, itemID string, quantity int, snapshot *domain.ProductSnapshot) error {
	body := addItemRequest{ItemID: itemID, Quantity: quantity}
	if snapshot != nil {
		w := toWireProduct(*snapshot)
		body.Product = &w
	}
	res, err := g.do(ctx, http.MethodPost, g.cartPath(userID)+"/items", body)
	if err != nil {
		return err
	}
	if res.status != http.StatusOK && res.status != http.StatusCreated {
		return unexpectedStatus(res.status)
	}
	return nil
}

func (g *Gateway) UpdateItem(ctx context.Context, userID, itemID string, quantity int) error {
	res, err := g.do(ctx, http.MethodPut, g.itemPath(userID, itemID), updateItemRequest{Quantity: quantity})
	if err != nil {
		return err
	}
	if res.status != http.StatusOK && res.status != http.StatusNoContent {
		return unexpectedStatus(res.status)
	}
	return nil
}

func (g *Gateway) RemoveItem(ctx context.Context, userID, itemID string) error {
	res, err := g.do(ctx, http.MethodDelete, g.itemPath(userID, itemID), nil)
	if err != nil {
		return err
	}
	if res.status != http.StatusOK && res.status != http.StatusNoContent {
		return unexpectedStatus(res.status)
	}
	return nil
}

func (g *Gateway) ClearCart(ctx context.Context, userID string) error {
	res, err := g.do(ctx, http.MethodDelete, g.cartPath(userID), nil)
	if err != nil {
		return err
	}
	if res.status != http.StatusOK && res.status != http.StatusNoContent {
		return unexpectedStatus(res.status)
	}
	return nil
}

// Validate asks the backend whether the cart is checkout-ready.
func (g *Gateway) Validate(ctx context.Context, userID string) (bool, error) {
	res, err := g.do(ctx, http.MethodGet, g.cartPath(userID)+"/validate", nil)
	if err != nil {
		return false, err
	}
	if res.status == http.StatusNotFound {
		return false, nil
	}
	if res.status != http.StatusOK {
		return false, unexpectedStatus(res.status)
	}
	var v validateResponse
	if err := json.Unmarshal(res.body, &v); err != nil {
		return false, fmt.Errorf("decode validation: %w", err)
	}
	return v.Valid, nil
}

func (g *Gateway) ItemCount(ctx context.Context, userID string) (int, error) {
	res, err := g.do(ctx, http.MethodGet, g.cartPath(userID)+"/count", nil)
	if err != nil {
		return 0, err
	}
	if res.status == http.StatusNotFound {
		return 0, nil
	}
	if res.status != http.StatusOK {
		return 0, unexpectedStatus(res.status)
	}
	var c countResponse
	if err := json.Unmarshal(res.body, &c); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return c.Count, nil
}

func (g *Gateway) cartPath(userID string) string {
	return "/api/v1/users/" + url.PathEscape(userID) + "/cart"
}

func (g *Gateway) itemPath(userID, itemID string) string {
	return g.cartPath(userID) + "/items/" + url.PathEscape(itemID)
}

// do runs one HTTP exchange through the breaker. Transport errors and 5xx
// responses count as breaker failures; any response below 500 is handed
// back to the caller to interpret.
func (g *Gateway) do(ctx context.Context, method, path string, body interface{}) (httpResult, error) {
	res, err := g.breaker.Execute(func() (httpResult, error) {
		var reader *bytes.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return httpResult{}, err
			}
			reader = bytes.NewReader(raw)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
		if err != nil {
			return httpResult{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if token := g.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return httpResult{}, err
		}
		defer resp.Body.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return httpResult{}, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return httpResult{}, unexpectedStatus(resp.StatusCode)
		}
		return httpResult{status: resp.StatusCode, body: buf.Bytes()}, nil
	})
	if err != nil {
		g.logger.Warnw("cart backend request failed", "method", method, "path", path, "error", err)
		return httpResult{}, err
	}
	return res, nil
}

func unexpectedStatus(status int) error {
	return fmt.Errorf("cart backend returned status %d", status)
}
