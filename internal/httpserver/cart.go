package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-cart/internal/coordinator"
	"storefront-cart/internal/domain"
)

type viewResponse struct {
	Cart      *cartResponse     `json:"cart,omitempty"`
	GuestCart *domain.GuestCart `json:"guestCart,omitempty"`
	ItemCount int               `json:"itemCount"`
	Loading   bool              `json:"loading"`
}

type cartResponse struct {
	*domain.Cart
	ItemCount int  `json:"itemCount"`
	IsEmpty   bool `json:"isEmpty"`
}

type addItemRequest struct {
	ItemID   string                  `json:"itemId" binding:"required"`
	Quantity int                     `json:"quantity" binding:"required"`
	Product  *domain.ProductSnapshot `json:"product"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type loginRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

func toViewResponse(view coordinator.View) viewResponse {
	out := viewResponse{
		GuestCart: view.GuestCart,
		ItemCount: view.ItemCount,
		Loading:   view.Loading,
	}
	if view.Cart != nil {
		out.Cart = &cartResponse{
			Cart:      view.Cart,
			ItemCount: view.Cart.ItemCount(),
			IsEmpty:   view.Cart.IsEmpty(),
		}
	}
	return out
}

func writeResult(c *gin.Context, res domain.Result) {
	if !res.Success {
		msg := "cart operation failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": msg})
		return
	}
	view := currentClient(c).coordinator.View(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "view": toViewResponse(view)})
}

func getCartHandler(c *gin.Context) {
	view := currentClient(c).coordinator.View(c.Request.Context())
	c.JSON(http.StatusOK, toViewResponse(view))
}

func addItemHandler(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := currentClient(c).coordinator.AddItem(c.Request.Context(), req.ItemID, req.Quantity, req.Product)
	writeResult(c, res)
}

func updateItemHandler(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := currentClient(c).coordinator.UpdateItem(c.Request.Context(), c.Param("itemID"), *req.Quantity)
	writeResult(c, res)
}

func removeItemHandler(c *gin.Context) {
	res := currentClient(c).coordinator.RemoveItem(c.Request.Context(), c.Param("itemID"))
	writeResult(c, res)
}

func clearCartHandler(c *gin.Context) {
	res := currentClient(c).coordinator.ClearCart(c.Request.Context())
	writeResult(c, res)
}

func refreshCartHandler(c *gin.Context) {
	res := currentClient(c).coordinator.RefetchCart(c.Request.Context())
	writeResult(c, res)
}

func validateCartHandler(c *gin.Context) {
	valid, err := currentClient(c).coordinator.ValidateCart(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func countHandler(c *gin.Context) {
	count := currentClient(c).coordinator.ItemCount(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// loginHandler accepts either a backend-issued token or, for development
// convenience, a bare user ID to sign a token for.
func loginHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token := req.Token
		if token == "" {
			if req.UserID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "token or userId required"})
				return
			}
			issued, err := deps.Verifier.Issue(req.UserID, deps.Config.SessionTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
				return
			}
			token = issued
		}

		cl := currentClient(c)
		if err := cl.session.Login(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		view := cl.coordinator.View(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"token": token, "view": toViewResponse(view)})
	}
}

func logoutHandler(c *gin.Context) {
	cl := currentClient(c)
	cl.session.Logout()
	view := cl.coordinator.View(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"view": toViewResponse(view)})
}
