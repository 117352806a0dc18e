// handlers/market.go
package handlers

import (
	"trade-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMarketRoutes(app *fiber.App, priceService *services.PriceService, signalService *services.SignalService) {
	// 🔓 Market data is public — prices are best-effort and never secret
	app.Get("/price/:symbol", priceService.GetPrice)
	app.Get("/prices", priceService.GetCommonPrices)
	app.Get("/news", priceService.GetNews)

	app.Get("/ai/signals/:ticker", signalService.GetSignal)
	app.Post("/ai/signals", signalService.GetSignals)
}
