package domain

import "time"

// GuestCart is the client-local cart of an unauthenticated visitor. It has
// no server counterpart and lives entirely in local storage, keyed by a
// session ID that is generated once and never regenerated on read.
type GuestCart struct {
	SessionID string          `json:"sessionId"`
	Items     []GuestCartItem `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type GuestCartItem struct {
	ItemID   string          `json:"itemId"`
	Quantity int             `json:"quantity"`
	Product  ProductSnapshot `json:"product"`
	AddedAt  time.Time       `json:"addedAt"`
}

func (g *GuestCart) ItemCount() int {
	if g == nil {
		return 0
	}
	total := 0
	for _, item := range g.Items {
		total += item.Quantity
	}
	return total
}

func (g *GuestCart) IsEmpty() bool {
	return g.ItemCount() == 0
}

func (g *GuestCart) FindItem(itemID string) (GuestCartItem, bool) {
	if g == nil {
		return GuestCartItem{}, false
	}
	for _, item := range g.Items {
		if item.ItemID == itemID {
			return item, true
		}
	}
	return GuestCartItem{}, false
}
