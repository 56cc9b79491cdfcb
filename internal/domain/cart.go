package domain

import "time"

// Cart is the server-backed cart of an authenticated user. It exists only
// while a user is logged in and is created implicitly by the backend on the
// first item add. Monetary amounts are cents.
type Cart struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"userId"`
	Items               []CartItem `json:"cartItems"`
	SubtotalCents       int64      `json:"subtotalCents"`
	DiscountCents       int64      `json:"discountCents"`
	TotalCents          int64      `json:"totalCents"`
	FulfillmentSelected bool       `json:"fulfillmentSelected"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type CartItem struct {
	ItemID   string          `json:"itemId"`
	Quantity int             `json:"quantity"`
	Product  ProductSnapshot `json:"product"`
	AddedAt  time.Time       `json:"addedAt"`
}

// ProductSnapshot is the denormalized product state captured at add time.
// Guest carts have no live backend join, so this is all the UI gets.
type ProductSnapshot struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	ImageURL   string `json:"imageUrl,omitempty"`
	StoreID    string `json:"storeId,omitempty"`
	StoreName  string `json:"storeName,omitempty"`
	Available  int    `json:"availableQuantity,omitempty"`
}

// ItemCount is always recomputed from the items, never stored.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return c.ItemCount() == 0
}

// FindItem returns the item with the given ID, or false when absent.
func (c *Cart) FindItem(itemID string) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.ItemID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}

// EmptyCart is the normalized form of "no cart row exists for this user".
// A missing remote cart is not an error.
func EmptyCart(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
