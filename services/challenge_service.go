package services

import (
	"errors"

	"trade-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ChallengePlans are the purchasable configurations, addressed by slug.
var ChallengePlans = []models.ChallengePlan{
	{Slug: slug.Make("Starter"), Name: "Starter", InitialBalance: 5000.0, MaxDailyLoss: 5.0, MaxTotalLoss: 10.0, ProfitTarget: 20.0},
	{Slug: slug.Make("Pro"), Name: "Pro", InitialBalance: 10000.0, MaxDailyLoss: 5.0, MaxTotalLoss: 10.0, ProfitTarget: 20.0},
	{Slug: slug.Make("Elite"), Name: "Elite", InitialBalance: 20000.0, MaxDailyLoss: 5.0, MaxTotalLoss: 10.0, ProfitTarget: 20.0},
}

func planBySlug(s string) *models.ChallengePlan {
	for i := range ChallengePlans {
		if ChallengePlans[i].Slug == slug.Make(s) {
			return &ChallengePlans[i]
		}
	}
	return nil
}

type ChallengeService struct {
	DB     *gorm.DB
	Engine *ChallengeEngine
}

func NewChallengeService(db *gorm.DB, engine *ChallengeEngine) *ChallengeService {
	return &ChallengeService{DB: db, Engine: engine}
}

type createChallengeRequest struct {
	UserID         string   `json:"user_id"`
	InitialBalance *float64 `json:"initial_balance"`
	MaxDailyLoss   *float64 `json:"max_daily_loss"`
	MaxTotalLoss   *float64 `json:"max_total_loss"`
	ProfitTarget   *float64 `json:"profit_target"`
}

// CreateChallenge opens a challenge with the default parameters unless the
// request overrides them. One active challenge per user.
func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	var req createChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", req.UserID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}

	initial := models.DefaultInitialBalance
	maxDaily := models.DefaultMaxDailyLoss
	maxTotal := models.DefaultMaxTotalLoss
	target := models.DefaultProfitTarget
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}
	if req.MaxDailyLoss != nil {
		maxDaily = *req.MaxDailyLoss
	}
	if req.MaxTotalLoss != nil {
		maxTotal = *req.MaxTotalLoss
	}
	if req.ProfitTarget != nil {
		target = *req.ProfitTarget
	}
	if initial <= 0 || maxDaily <= 0 || maxTotal <= 0 || target <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "balance and thresholds must be positive"})
	}

	ch, err := s.Engine.CreateChallenge(req.UserID, initial, maxDaily, maxTotal, target)
	if err != nil {
		if errors.Is(err, ErrActiveChallengeExists) {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to create challenge"})
	}

	return c.Status(201).JSON(fiber.Map{
		"message":         "Challenge created successfully",
		"challenge_id":    ch.ID,
		"initial_balance": ch.InitialBalance,
		"current_balance": ch.CurrentBalance,
		"status":          ch.Status,
		"start_date":      ch.StartDate,
	})
}

type purchaseChallengeRequest struct {
	PlanID string `json:"plan_id"`
	UserID string `json:"user_id"`
}

// PurchaseChallenge opens a challenge from a named plan (starter/pro/elite).
func (s *ChallengeService) PurchaseChallenge(c *fiber.Ctx) error {
	var req purchaseChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if req.PlanID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "plan_id is required"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id is required"})
	}

	plan := planBySlug(req.PlanID)
	if plan == nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid plan ID"})
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", req.UserID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}

	ch, err := s.Engine.CreateChallenge(req.UserID, plan.InitialBalance, plan.MaxDailyLoss, plan.MaxTotalLoss, plan.ProfitTarget)
	if err != nil {
		if errors.Is(err, ErrActiveChallengeExists) {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to purchase challenge"})
	}

	return c.Status(201).JSON(fiber.Map{
		"message":         "Challenge purchased successfully",
		"plan":            plan.Name,
		"challenge_id":    ch.ID,
		"initial_balance": ch.InitialBalance,
		"current_balance": ch.CurrentBalance,
		"status":          ch.Status,
		"start_date":      ch.StartDate,
	})
}

// GetChallengePlans lists the purchasable plans.
func (s *ChallengeService) GetChallengePlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": ChallengePlans})
}

// GetChallenge returns one challenge with its full trade ledger.
func (s *ChallengeService) GetChallenge(c *fiber.Ctx) error {
	id := c.Params("id")

	var ch models.Challenge
	if err := s.DB.Preload("Trades", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC")
	}).First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to load challenge"})
	}

	return c.JSON(ch)
}

// GetChallengeMetrics returns performance metrics for one challenge.
func (s *ChallengeService) GetChallengeMetrics(c *fiber.Ctx) error {
	metrics, err := s.Engine.PerformanceMetrics(c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute metrics"})
	}
	return c.JSON(metrics)
}

type updateBalanceRequest struct {
	NewBalance *float64 `json:"new_balance"`
}

// UpdateChallengeBalance overrides the balance and re-evaluates the status.
// Admin/debug endpoint.
func (s *ChallengeService) UpdateChallengeBalance(c *fiber.Ctx) error {
	var req updateBalanceRequest
	if err := c.BodyParser(&req); err != nil || req.NewBalance == nil {
		return c.Status(400).JSON(fiber.Map{"error": "new_balance is required"})
	}

	ch, err := s.Engine.SetBalance(c.Params("id"), *req.NewBalance)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to update balance"})
	}

	return c.JSON(fiber.Map{
		"message":         "Balance updated successfully",
		"challenge_id":    ch.ID,
		"current_balance": ch.CurrentBalance,
		"status":          ch.Status,
	})
}

// GetUserChallenges lists all challenges of one user.
func (s *ChallengeService) GetUserChallenges(c *fiber.Ctx) error {
	userID := c.Params("user_id")

	var challenges []models.Challenge
	if err := s.DB.Where("user_id = ?", userID).Order("start_date DESC").Find(&challenges).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load challenges"})
	}

	return c.JSON(fiber.Map{
		"user_id":    userID,
		"challenges": challenges,
	})
}

// GetAllChallenges lists every challenge with its trade count. Admin/debug.
func (s *ChallengeService) GetAllChallenges(c *fiber.Ctx) error {
	var challenges []models.Challenge
	if err := s.DB.Order("start_date DESC").Find(&challenges).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load challenges"})
	}

	type challengeWithCount struct {
		models.Challenge
		TradesCount int64 `json:"trades_count"`
	}
	out := make([]challengeWithCount, len(challenges))
	for i, ch := range challenges {
		var count int64
		s.DB.Model(&models.Trade{}).Where("challenge_id = ?", ch.ID).Count(&count)
		out[i] = challengeWithCount{Challenge: ch, TradesCount: count}
	}

	return c.JSON(fiber.Map{
		"challenges":       out,
		"total_challenges": len(out),
	})
}

const leaderboardSize = 10

// GetLeaderboard returns the top traders by profit percentage. Completed
// (funded/failed) challenges rank first; remaining slots are padded with the
// best active ones.
func (s *ChallengeService) GetLeaderboard(c *fiber.Ctx) error {
	rows, err := s.leaderboardRows([]string{models.StatusFunded, models.StatusFailed}, leaderboardSize)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
	}

	if len(rows) < leaderboardSize {
		active, err := s.leaderboardRows([]string{models.StatusActive}, leaderboardSize-len(rows))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to build leaderboard"})
		}
		rows = append(rows, active...)
	}

	for i := range rows {
		rows[i].Rank = i + 1
	}

	return c.JSON(fiber.Map{
		"leaderboard":  rows,
		"total_ranked": len(rows),
	})
}

// leaderboardRows aggregates challenges of the given statuses ordered by
// profit percentage, with per-challenge trade counts.
func (s *ChallengeService) leaderboardRows(statuses []string, limit int) ([]models.LeaderboardRow, error) {
	type row struct {
		Username         string
		InitialBalance   float64
		CurrentBalance   float64
		Status           string
		TradeCount       int64
		ProfitPercentage float64
	}

	var raw []row
	err := s.DB.Model(&models.Challenge{}).
		Select(`users.username AS username,
			challenges.initial_balance AS initial_balance,
			challenges.current_balance AS current_balance,
			challenges.status AS status,
			COUNT(trades.id) AS trade_count,
			(challenges.current_balance - challenges.initial_balance) / challenges.initial_balance * 100 AS profit_percentage`).
		Joins("JOIN users ON users.id = challenges.user_id").
		Joins("LEFT JOIN trades ON trades.challenge_id = challenges.id").
		Where("challenges.status IN ? AND challenges.initial_balance > 0", statuses).
		Group("users.id, challenges.id").
		Order("profit_percentage DESC").
		Limit(limit).
		Scan(&raw).Error
	if err != nil {
		return nil, err
	}

	rows := make([]models.LeaderboardRow, len(raw))
	for i, r := range raw {
		rows[i] = models.LeaderboardRow{
			Username:         r.Username,
			ProfitPercentage: r.ProfitPercentage,
			TotalProfit:      r.CurrentBalance - r.InitialBalance,
			ChallengeStatus:  r.Status,
			Trades:           r.TradeCount,
		}
	}
	return rows, nil
}
