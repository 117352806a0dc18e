package services

import (
	"errors"

	"trade-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TradeService struct {
	DB     *gorm.DB
	Engine *ChallengeEngine
}

func NewTradeService(db *gorm.DB, engine *ChallengeEngine) *TradeService {
	return &TradeService{DB: db, Engine: engine}
}

type createTradeRequest struct {
	ChallengeID string   `json:"challenge_id"`
	AssetName   string   `json:"asset_name"`
	EntryPrice  *float64 `json:"entry_price"`
	Side        string   `json:"side"`
	Type        string   `json:"type"` // legacy alias for side
	Quantity    *float64 `json:"quantity"`
}

// CreateTrade submits a trade against a challenge. The engine attributes
// P&L, updates the balance and evaluates the status transition as one unit.
func (s *TradeService) CreateTrade(c *fiber.Ctx) error {
	var req createTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON body"})
	}

	side := req.Side
	if side == "" {
		side = req.Type
	}
	if req.ChallengeID == "" || req.AssetName == "" || req.EntryPrice == nil || side == "" {
		return c.Status(400).JSON(fiber.Map{"error": "challenge_id, asset_name, entry_price, and type are required"})
	}
	if *req.EntryPrice <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "entry_price must be a positive number"})
	}

	quantity := 0.0 // engine applies its configured default
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return c.Status(400).JSON(fiber.Map{"error": "quantity must be a positive number"})
		}
		quantity = *req.Quantity
	}

	result, err := s.Engine.SubmitTrade(req.ChallengeID, req.AssetName, *req.EntryPrice, side, quantity)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTradeSide):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrChallengeNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		case errors.Is(err, ErrChallengeNotActive):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(500).JSON(fiber.Map{"error": "failed to create trade"})
		}
	}

	return c.Status(201).JSON(fiber.Map{
		"message":          "Trade created successfully",
		"trade_id":         result.Trade.ID,
		"challenge_id":     result.Trade.ChallengeID,
		"asset_name":       result.Trade.AssetName,
		"entry_price":      result.Trade.EntryPrice,
		"type":             result.Trade.Side,
		"timestamp":        result.Trade.Timestamp,
		"current_balance":  result.Challenge.CurrentBalance,
		"challenge_status": result.Challenge.Status,
	})
}

// GetTrade returns one trade by id.
func (s *TradeService) GetTrade(c *fiber.Ctx) error {
	var trade models.Trade
	if err := s.DB.First(&trade, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "trade not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load trade"})
	}
	return c.JSON(trade)
}

// GetChallengeTrades lists a challenge's trades, newest first.
func (s *TradeService) GetChallengeTrades(c *fiber.Ctx) error {
	challengeID := c.Params("id")

	var ch models.Challenge
	if err := s.DB.First(&ch, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load challenge"})
	}

	var trades []models.Trade
	if err := s.DB.Where("challenge_id = ?", challengeID).Order("timestamp DESC").Find(&trades).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load trades"})
	}

	return c.JSON(fiber.Map{
		"challenge_id": challengeID,
		"trades_count": len(trades),
		"trades":       trades,
	})
}

// DeleteTrade removes a trade and re-evaluates the owning challenge.
func (s *TradeService) DeleteTrade(c *fiber.Ctx) error {
	tradeID := c.Params("id")

	if _, err := s.Engine.DeleteTrade(tradeID); err != nil {
		if errors.Is(err, ErrTradeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "trade not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete trade"})
	}

	return c.JSON(fiber.Map{
		"message":  "Trade deleted successfully",
		"trade_id": tradeID,
	})
}
