// Package api is the bazaar REST surface: message history, sending, read
// receipts and notifications, plus the mount point for the realtime socket.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bhandras/bazaar/internal/hub"
	"github.com/bhandras/bazaar/internal/wire"
)

// Deps are the collaborators of the router.
type Deps struct {
	Verifier       hub.Verifier
	Chat           Chat
	AllowedOrigins []string
	// Socket serves the socket.io endpoint. Optional.
	Socket gin.HandlerFunc
}

// NewRouter assembles the gin engine.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
	}))
	router.Use(LoggingMiddleware())

	// Root endpoint returns plain text for client validation.
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Bazaar Server!")
	})

	h := NewHandler(deps.Chat)

	protected := router.Group("/v1")
	protected.Use(AuthMiddleware(deps.Verifier))
	{
		protected.POST("/messages", h.SendMessage)
		protected.GET("/messages", h.ListMessages)
		protected.POST("/messages/read", h.MarkRead)

		protected.GET("/notifications", h.ListNotifications)
		protected.POST("/notifications/:id/read", h.ReadNotification)
	}

	// The socket authenticates in its own handshake.
	if deps.Socket != nil {
		router.Any(wire.SocketPath, deps.Socket)
		router.Any(wire.SocketPath+"/*any", deps.Socket)
	}
	return router
}
