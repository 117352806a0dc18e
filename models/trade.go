package models

import (
	"time"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is a single buy/sell record against an asset inside a challenge.
// Trades are append-only: immutable once created, except for deletion, which
// triggers a re-evaluation of the owning challenge.
type Trade struct {
	ID          string    `json:"trade_id" gorm:"primaryKey"`
	ChallengeID string    `json:"challenge_id" gorm:"not null;index"`
	AssetName   string    `json:"asset_name" gorm:"not null"`
	EntryPrice  float64   `json:"entry_price" gorm:"not null"`
	Side        string    `json:"type" gorm:"not null"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
}

// OppositeSide returns sell for buy and buy for sell.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ValidSide reports whether side is one of buy/sell.
func ValidSide(side string) bool {
	return side == SideBuy || side == SideSell
}
