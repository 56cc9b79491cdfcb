package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	guestSessionHeader = "X-Guest-Session"
	clientCtxKey       = "cartClient"
)

// buildRouter wires routes for the cart API.
func buildRouter(deps Deps, clients *clientRegistry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = deps.Config.AllowedOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", guestSessionHeader)
	corsCfg.ExposeHeaders = append(corsCfg.ExposeHeaders, guestSessionHeader)
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", healthHandler)

	api := router.Group("/")
	api.Use(sessionMiddleware(clients))
	{
		api.GET("/cart", getCartHandler)
		api.POST("/cart/items", addItemHandler)
		api.PUT("/cart/items/:itemID", updateItemHandler)
		api.DELETE("/cart/items/:itemID", removeItemHandler)
		api.DELETE("/cart", clearCartHandler)
		api.POST("/cart/refresh", refreshCartHandler)
		api.GET("/cart/validate", validateCartHandler)
		api.GET("/cart/count", countHandler)
		api.POST("/session/login", loginHandler(deps))
		api.POST("/session/logout", logoutHandler)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sessionMiddleware resolves the browser session: the X-Guest-Session
// header identifies the storage/coordinator stack (minted on first
// contact), and a bearer token, when present, authenticates it.
func sessionMiddleware(clients *clientRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(guestSessionHeader))
		if sessionID == "" {
			sessionID = NewSessionID()
		}
		c.Header(guestSessionHeader, sessionID)

		cl := clients.Get(sessionID)

		if token := bearerToken(c); token != "" && token != cl.session.Token() {
			if err := cl.session.Login(token); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}

		c.Set(clientCtxKey, cl)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func currentClient(c *gin.Context) *client {
	return c.MustGet(clientCtxKey).(*client)
}
