package gateway

import (
	"time"

	"storefront-cart/internal/domain"
)

// The cart backend speaks snake_case. All translation between the wire
// shape and the domain view model happens here, once, at the gateway
// boundary; nothing downstream guesses at field casing.

type wireCart struct {
	ID                  string         `json:"id"`
	UserID              string         `json:"user_id"`
	CartItems           []wireCartItem `json:"cart_items"`
	SubtotalCents       int64          `json:"subtotal_cents"`
	DiscountCents       int64          `json:"discount_cents"`
	TotalCents          int64          `json:"total_cents"`
	FulfillmentSelected bool           `json:"fulfillment_selected"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type wireCartItem struct {
	ItemID   string      `json:"item_id"`
	Quantity int         `json:"quantity"`
	Product  wireProduct `json:"product"`
	AddedAt  time.Time   `json:"added_at"`
}

type wireProduct struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	ImageURL   string `json:"image_url,omitempty"`
	StoreID    string `json:"store_id,omitempty"`
	StoreName  string `json:"store_name,omitempty"`
	Available  int    `json:"available_quantity,omitempty"`
}

type addItemRequest struct {
	ItemID   string       `json:"item_id"`
	Quantity int          `json:"quantity"`
	Product  *wireProduct `json:"product,omitempty"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type countResponse struct {
	Count int `json:"count"`
}

func fromWireCart(w wireCart) *domain.Cart {
	items := make([]domain.CartItem, 0, len(w.CartItems))
	for _, item := range w.CartItems {
		items = append(items, domain.CartItem{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
			Product:  fromWireProduct(item.Product),
			AddedAt:  item.AddedAt,
		})
	}
	return &domain.Cart{
		ID:                  w.ID,
		UserID:              w.UserID,
		Items:               items,
		SubtotalCents:       w.SubtotalCents,
		DiscountCents:       w.DiscountCents,
		TotalCents:          w.TotalCents,
		FulfillmentSelected: w.FulfillmentSelected,
		CreatedAt:           w.CreatedAt,
		UpdatedAt:           w.UpdatedAt,
	}
}

func fromWireProduct(w wireProduct) domain.ProductSnapshot {
	return domain.ProductSnapshot{
		Name:       w.Name,
		PriceCents: w.PriceCents,
		ImageURL:   w.ImageURL,
		StoreID:    w.StoreID,
		StoreName:  w.StoreName,
		Available:  w.Available,
	}
}

func toWireProduct(p domain.ProductSnapshot) wireProduct {
	return wireProduct{
		Name:       p.Name,
		PriceCents: p.PriceCents,
		ImageURL:   p.ImageURL,
		StoreID:    p.StoreID,
		StoreName:  p.StoreName,
		Available:  p.Available,
	}
}
