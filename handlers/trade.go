// handlers/trade.go
package handlers

import (
	"trade-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTradeRoutes(app *fiber.App, tradeService *services.TradeService, auth fiber.Handler) {
	// 🔐 All trade mutations require user context
	secured := app.Group("/", auth)

	secured.Post("/trade/create", tradeService.CreateTrade)
	secured.Get("/trade/:id", tradeService.GetTrade)
	secured.Delete("/trade/:id", tradeService.DeleteTrade)
	secured.Get("/challenge/:id/trades", tradeService.GetChallengeTrades)
}
