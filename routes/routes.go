package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pokopiemy/match-system/handlers"
	"github.com/pokopiemy/match-system/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	corsAllowedOrigins []string,
	authHandler *handlers.AuthHandler,
	matchHandler *handlers.MatchHandler,
	registrationHandler *handlers.RegistrationHandler,
	userHandler *handlers.UserHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Get("/me", authHandler.Me)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		// Публичные маршруты для просмотра матчей; на детали токен
		// опционален и лишь обогащает ответ флагами текущего пользователя
		r.Get("/", matchHandler.List)
		r.With(auth.MaybeAuthenticate).Get("/{id}", matchHandler.Get)

		// Отмена доступна организатору и администратору (решает сервис)
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/{id}/cancel", matchHandler.Cancel)
		})

		// Управление матчами - только администраторы
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(auth.RequireAdmin)

			r.Post("/", matchHandler.Create)
			r.Put("/{id}", matchHandler.Update)
			r.Post("/{id}/finish", matchHandler.Finish)
			r.Delete("/{id}", matchHandler.Delete)
		})
	})

	router.Route("/registrations", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/", registrationHandler.Create)
		r.Get("/mine", registrationHandler.ListMine)
		r.Delete("/{id}", registrationHandler.Delete)
	})

	router.Route("/users", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(auth.RequireAdmin)

		r.Get("/", userHandler.List)
		r.Get("/{id}", userHandler.Get)
		r.Put("/{id}", userHandler.Update)
		r.Delete("/{id}", userHandler.Delete)
	})

	router.Get("/ws/matches/{id}", webSocketHandler.ServeMatch)
}
