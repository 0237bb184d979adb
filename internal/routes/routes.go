package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aaryankumar13084/TeleChat/internal/config"
	"github.com/Aaryankumar13084/TeleChat/internal/handlers"
	"github.com/Aaryankumar13084/TeleChat/internal/middleware"
	"github.com/Aaryankumar13084/TeleChat/internal/repository"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
	chatws "github.com/Aaryankumar13084/TeleChat/internal/websocket"
)

// RegisterRoutes is the composition root: the session registry, presence
// tracker and fan-out engine are built here and handed to the protocol and
// HTTP layers by reference.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	store := repository.NewStore(db)
	userRepo := repository.NewUserRepository(db)

	registry := chatws.NewRegistry()
	engine := chatws.NewEngine(registry, store)
	presence := chatws.NewPresenceTracker(store, engine)
	chatService := services.NewChatService(store, engine)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(userRepo)
	chatHandler := handlers.NewChatHandler(chatService, registry, presence, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	users := authProtected.Group("/users")
	users.Get("", userHandler.ListContacts)
	users.Get("/me", userHandler.GetProfile)
	users.Put("/me", userHandler.UpdateProfile)

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)

	authProtected.Delete("/messages/:id", chatHandler.DeleteMessage)

	// outside the bearer-protected group: a connection without an upgrade
	// token authenticates in-band with its first frame
	api.Use("/ws", chatHandler.WebSocketAuth)
	api.Get("/ws", websocket.New(chatHandler.HandleWebSocket))
}
