// Package api exposes the messaging core over HTTP and WebSocket.
// Request/response operations go through gin; the live event channel is
// one WebSocket per connected user.
package api

import (
	"courier/auth"

	"github.com/gin-gonic/gin"
)

// NewRouter assembles the authenticated route tree. Every route trusts
// the user id injected by the auth middleware; the server never sees
// credentials.
func NewRouter(verifier *auth.Verifier, handlers *Handlers, ws *WSHandler) *gin.Engine {
	RegisterValidations()

	router := gin.New()
	router.Use(gin.Recovery())

	authenticated := router.Group("/", auth.Middleware(verifier))

	messages := authenticated.Group("/api/messages")
	{
		messages.POST("", handlers.SendMessage)
		messages.GET("/conversations", handlers.ListConversations)
		messages.GET("/conversation/:userId", handlers.GetConversation)
		messages.PUT("/read", handlers.MarkRead)
		messages.GET("/search", handlers.SearchMessages)
	}

	users := authenticated.Group("/api/users")
	{
		users.GET("", handlers.ListUsers)
		users.GET("/:id", handlers.GetUser)
	}

	authenticated.GET("/ws", ws.HandleWS)

	return router
}
