// handlers/user.go
package handlers

import (
	"trade-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService, auth fiber.Handler) {
	// 🔓 Public routes
	app.Post("/register", userService.Register)
	app.Post("/login", userService.Login)

	// 🔐 Authenticated routes
	secured := app.Group("/", auth)
	secured.Get("/profile", userService.Profile)
}
