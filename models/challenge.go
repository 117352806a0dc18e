package models

import (
	"time"
)

// Challenge statuses. Failed and funded are terminal — a challenge never
// returns to active once it has left it.
const (
	StatusActive = "active"
	StatusFailed = "failed"
	StatusFunded = "funded"
)

// Default challenge parameters, matching the starter plan.
const (
	DefaultInitialBalance = 5000.0
	DefaultMaxDailyLoss   = 5.0  // max daily loss percentage
	DefaultMaxTotalLoss   = 10.0 // max total loss percentage
	DefaultProfitTarget   = 20.0 // profit percentage required to become funded
)

// Challenge represents a simulated funded-trading account with fixed risk
// thresholds. CurrentBalance is mutated only by the challenge engine;
// InitialBalance and the risk parameters are fixed at creation.
type Challenge struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	UserID         string     `json:"user_id" gorm:"not null;index"`
	InitialBalance float64    `json:"initial_balance" gorm:"not null"`
	CurrentBalance float64    `json:"current_balance" gorm:"not null"`
	Status         string     `json:"status" gorm:"not null;default:'active';index"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`

	// Risk parameters (positive percentages)
	MaxDailyLoss float64 `json:"max_daily_loss" gorm:"not null"`
	MaxTotalLoss float64 `json:"max_total_loss" gorm:"not null"`
	ProfitTarget float64 `json:"profit_target" gorm:"not null"`

	// Set by the archive worker after the ledger snapshot is uploaded.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// Relationships
	Trades []Trade `json:"trades,omitempty" gorm:"foreignKey:ChallengeID"`
}

// IsTerminal reports whether the challenge has permanently left the active state.
func (c *Challenge) IsTerminal() bool {
	return c.Status == StatusFailed || c.Status == StatusFunded
}

// ChallengePlan is a purchasable challenge configuration. Plans are static
// config rather than DB rows; they are addressed by slug.
type ChallengePlan struct {
	Slug           string  `json:"plan_id"`
	Name           string  `json:"name"`
	InitialBalance float64 `json:"initial_balance"`
	MaxDailyLoss   float64 `json:"max_daily_loss"`
	MaxTotalLoss   float64 `json:"max_total_loss"`
	ProfitTarget   float64 `json:"profit_target"`
}

// LeaderboardRow is one entry of the profit-percentage leaderboard.
type LeaderboardRow struct {
	Rank             int     `json:"rank"`
	Username         string  `json:"username"`
	ProfitPercentage float64 `json:"profit_percentage"`
	TotalProfit      float64 `json:"total_profit"`
	ChallengeStatus  string  `json:"challenge_status"`
	Trades           int64   `json:"trades"`
}

// PerformanceMetrics is the detailed per-challenge report returned by the
// metrics endpoint.
type PerformanceMetrics struct {
	ChallengeID           string     `json:"challenge_id"`
	UserID                string     `json:"user_id"`
	Status                string     `json:"status"`
	InitialBalance        float64    `json:"initial_balance"`
	CurrentBalance        float64    `json:"current_balance"`
	TotalChangePercentage float64    `json:"total_change_percentage"`
	DailyChangePercentage float64    `json:"daily_change_percentage"`
	MaxDailyLossThreshold float64    `json:"max_daily_loss_threshold"`
	MaxTotalLossThreshold float64    `json:"max_total_loss_threshold"`
	ProfitTargetThreshold float64    `json:"profit_target_threshold"`
	TotalTrades           int64      `json:"total_trades"`
	WinningTrades         int64      `json:"winning_trades"`
	WinRate               float64    `json:"win_rate"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date,omitempty"`
}
