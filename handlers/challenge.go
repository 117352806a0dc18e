// handlers/challenge.go
package handlers

import (
	"trade-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, challengeService *services.ChallengeService, auth fiber.Handler) {
	// 🔓 Public routes
	app.Get("/leaderboard", challengeService.GetLeaderboard)
	app.Get("/challenges/plans", challengeService.GetChallengePlans)

	// 🔐 Authenticated routes
	secured := app.Group("/", auth)

	secured.Post("/challenge/create", challengeService.CreateChallenge)
	secured.Post("/challenges/purchase", challengeService.PurchaseChallenge)
	secured.Get("/challenge/:id", challengeService.GetChallenge)
	secured.Get("/challenge/:id/metrics", challengeService.GetChallengeMetrics)
	secured.Put("/challenge/:id/update-balance", challengeService.UpdateChallengeBalance)
	secured.Get("/user/:user_id/challenges", challengeService.GetUserChallenges)

	// Admin/debug listing
	secured.Get("/challenges", challengeService.GetAllChallenges)
}
