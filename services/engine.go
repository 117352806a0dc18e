package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"trade-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Typed errors surfaced by the challenge engine. Handlers map these onto
// HTTP status codes.
var (
	ErrChallengeNotFound     = errors.New("challenge not found")
	ErrTradeNotFound         = errors.New("trade not found")
	ErrChallengeNotActive    = errors.New("cannot create trade for inactive challenge")
	ErrInvalidTradeSide      = errors.New("trade type must be either \"buy\" or \"sell\"")
	ErrActiveChallengeExists = errors.New("user already has an active challenge")
)

// EngineConfig carries the position-size constants. Both are arbitrary demo
// sizing, not real position tracking, and the two call sites intentionally
// use different defaults.
type EngineConfig struct {
	// DefaultTradeQuantity is applied when a submitted trade omits quantity.
	DefaultTradeQuantity float64
	// DailyEstimateQuantity is used when backing today's P&L out of the
	// current balance to estimate the start-of-day balance.
	DailyEstimateQuantity float64
}

// DefaultEngineConfig mirrors the historical defaults (50 for explicit
// trades, 10 for the daily estimation path).
var DefaultEngineConfig = EngineConfig{
	DefaultTradeQuantity:  50,
	DailyEstimateQuantity: 10,
}

// ChallengeEngine is the authoritative implementation of the challenge
// rules: P&L attribution, balance updates and status transitions. All
// mutations of a single challenge are serialized through a per-challenge
// lock; different challenges proceed in parallel.
type ChallengeEngine struct {
	DB  *gorm.DB
	Cfg EngineConfig

	// Now is the evaluation clock. Overridable in tests; defaults to UTC wall time.
	Now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewChallengeEngine(db *gorm.DB, cfg EngineConfig) *ChallengeEngine {
	if cfg.DefaultTradeQuantity <= 0 {
		cfg.DefaultTradeQuantity = DefaultEngineConfig.DefaultTradeQuantity
	}
	if cfg.DailyEstimateQuantity <= 0 {
		cfg.DailyEstimateQuantity = DefaultEngineConfig.DailyEstimateQuantity
	}
	return &ChallengeEngine{
		DB:    db,
		Cfg:   cfg,
		Now:   func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one challenge's read-modify-write cycle.
func (e *ChallengeEngine) lockFor(challengeID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[challengeID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[challengeID] = l
	}
	return l
}

// --- Trade ledger ---

// tradesForChallenge returns the full ledger of a challenge, oldest first.
func (e *ChallengeEngine) tradesForChallenge(tx *gorm.DB, challengeID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := tx.Where("challenge_id = ?", challengeID).
		Order("timestamp ASC").
		Find(&trades).Error
	return trades, err
}

// mostRecentOppositeSide finds the latest prior trade on the same asset with
// the opposite side, or nil when the position is unmatched. This is
// deliberately NOT position-aware: a prior trade is never consumed, so it can
// match several later trades.
func (e *ChallengeEngine) mostRecentOppositeSide(tx *gorm.DB, challengeID, assetName, side string, before time.Time) (*models.Trade, error) {
	var match models.Trade
	err := tx.Where(
		"challenge_id = ? AND asset_name = ? AND side = ? AND timestamp < ?",
		challengeID, assetName, models.OppositeSide(side), before,
	).Order("timestamp DESC").First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// --- P&L attribution ---

// realizedPnl computes the profit/loss attributable to trade at the given
// fixed quantity. A trade with no opposite-side match opens a new position
// and realizes nothing.
func (e *ChallengeEngine) realizedPnl(tx *gorm.DB, trade *models.Trade, quantity float64) (float64, error) {
	match, err := e.mostRecentOppositeSide(tx, trade.ChallengeID, trade.AssetName, trade.Side, trade.Timestamp)
	if err != nil {
		return 0, err
	}
	if match == nil {
		return 0, nil
	}
	if trade.Side == models.SideSell {
		return (trade.EntryPrice - match.EntryPrice) * quantity, nil
	}
	return (match.EntryPrice - trade.EntryPrice) * quantity, nil
}

// --- Performance calculator ---

// TotalChangePct is the balance movement since creation, as a percentage of
// the initial balance. A zero initial balance is degenerate and yields 0.
func TotalChangePct(ch *models.Challenge) float64 {
	if ch.InitialBalance == 0 {
		return 0
	}
	return (ch.CurrentBalance - ch.InitialBalance) / ch.InitialBalance * 100
}

// dailyChangePct estimates the balance movement since midnight UTC. The
// opening balance is reconstructed by walking today's trades and subtracting
// each one's P&L contribution from the current balance. This is an
// approximation, not an exact replay of the ledger.
func (e *ChallengeEngine) dailyChangePct(tx *gorm.DB, ch *models.Challenge) (float64, error) {
	now := e.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var dailyTrades []models.Trade
	err := tx.Where("challenge_id = ? AND timestamp >= ?", ch.ID, startOfDay).
		Order("timestamp ASC").
		Find(&dailyTrades).Error
	if err != nil {
		return 0, err
	}
	if len(dailyTrades) == 0 {
		return 0, nil
	}

	openingBalance := ch.CurrentBalance
	for i := range dailyTrades {
		pnl, err := e.realizedPnl(tx, &dailyTrades[i], e.Cfg.DailyEstimateQuantity)
		if err != nil {
			return 0, err
		}
		openingBalance -= pnl
	}

	if openingBalance == 0 {
		return 0, nil
	}
	return (ch.CurrentBalance - openingBalance) / openingBalance * 100, nil
}

// --- Status evaluator ---

// evaluateStatus applies the threshold rules in priority order and reports
// whether the challenge left the active state. First matching rule wins:
// daily loss, then total loss, then profit target.
func evaluateStatus(ch *models.Challenge, totalChangePct, dailyChangePct float64, at time.Time) bool {
	switch {
	case dailyChangePct < -ch.MaxDailyLoss:
		ch.Status = models.StatusFailed
		log.Printf("Challenge %s failed due to daily loss (%.2f%% < -%.2f%%)", ch.ID, dailyChangePct, ch.MaxDailyLoss)
	case totalChangePct < -ch.MaxTotalLoss:
		ch.Status = models.StatusFailed
		log.Printf("Challenge %s failed due to total loss (%.2f%% < -%.2f%%)", ch.ID, totalChangePct, ch.MaxTotalLoss)
	case totalChangePct >= ch.ProfitTarget:
		ch.Status = models.StatusFunded
		log.Printf("Challenge %s funded: profit target reached (%.2f%% ≥ %.2f%%)", ch.ID, totalChangePct, ch.ProfitTarget)
	default:
		return false
	}
	endDate := at
	ch.EndDate = &endDate
	return true
}

// reevaluate recomputes both performance deltas and applies the status rules.
// Callers must hold the challenge lock and pass an open transaction.
func (e *ChallengeEngine) reevaluate(tx *gorm.DB, ch *models.Challenge) error {
	totalPct := TotalChangePct(ch)
	dailyPct, err := e.dailyChangePct(tx, ch)
	if err != nil {
		return err
	}
	evaluateStatus(ch, totalPct, dailyPct, e.Now())
	return nil
}

// --- Challenge lifecycle ---

// SubmitTradeResult is what a successful trade submission returns: the
// persisted trade plus the challenge state after evaluation.
type SubmitTradeResult struct {
	Trade     models.Trade
	Challenge models.Challenge
	Pnl       float64
}

// SubmitTrade runs the full "trade submitted" unit of work: validate, append
// to the ledger, attribute P&L, mutate the balance and evaluate the status
// transition, atomically and under the challenge's lock. quantity <= 0
// selects the configured default.
func (e *ChallengeEngine) SubmitTrade(challengeID, assetName string, entryPrice float64, side string, quantity float64) (*SubmitTradeResult, error) {
	side = strings.ToLower(side)
	if !models.ValidSide(side) {
		return nil, ErrInvalidTradeSide
	}
	if quantity <= 0 {
		quantity = e.Cfg.DefaultTradeQuantity
	}

	lock := e.lockFor(challengeID)
	lock.Lock()
	defer lock.Unlock()

	var result SubmitTradeResult
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var ch models.Challenge
		if err := tx.First(&ch, "id = ?", challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return err
		}
		if ch.Status != models.StatusActive {
			return ErrChallengeNotActive
		}

		trade := models.Trade{
			ID:          uuid.NewString(),
			ChallengeID: challengeID,
			AssetName:   assetName,
			EntryPrice:  entryPrice,
			Side:        side,
			Timestamp:   e.Now(),
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}

		pnl, err := e.realizedPnl(tx, &trade, quantity)
		if err != nil {
			return err
		}
		ch.CurrentBalance += pnl
		if pnl != 0 {
			log.Printf("Trade %s %s %s@%.2f x%.0f → pnl %.2f, balance %.2f",
				trade.ID, side, assetName, entryPrice, quantity, pnl, ch.CurrentBalance)
		}

		if err := e.reevaluate(tx, &ch); err != nil {
			return err
		}
		if err := tx.Save(&ch).Error; err != nil {
			return err
		}

		result = SubmitTradeResult{Trade: trade, Challenge: ch, Pnl: pnl}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteTrade removes a trade and re-evaluates the owning challenge.
// Deliberately, the deleted trade's attributed P&L is NOT reversed first:
// the status is re-derived from the balance as it stands, preserving the
// historical behavior of the system. Terminal challenges are left untouched.
func (e *ChallengeEngine) DeleteTrade(tradeID string) (*models.Challenge, error) {
	var trade models.Trade
	if err := e.DB.First(&trade, "id = ?", tradeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	lock := e.lockFor(trade.ChallengeID)
	lock.Lock()
	defer lock.Unlock()

	var ch models.Challenge
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Trade{}, "id = ?", tradeID).Error; err != nil {
			return err
		}
		if err := tx.First(&ch, "id = ?", trade.ChallengeID).Error; err != nil {
			return err
		}
		if ch.Status != models.StatusActive {
			return nil
		}
		if err := e.reevaluate(tx, &ch); err != nil {
			return err
		}
		return tx.Save(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ReevaluateChallenge re-runs the status evaluation against the current
// balance, e.g. after a manual balance override. No-op for terminal
// challenges: failed and funded are one-way.
func (e *ChallengeEngine) ReevaluateChallenge(challengeID string) (*models.Challenge, error) {
	lock := e.lockFor(challengeID)
	lock.Lock()
	defer lock.Unlock()

	var ch models.Challenge
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ch, "id = ?", challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return err
		}
		if ch.Status != models.StatusActive {
			return nil
		}
		if err := e.reevaluate(tx, &ch); err != nil {
			return err
		}
		return tx.Save(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateChallenge opens a new challenge for a user. A user may hold at most
// one active challenge at a time.
func (e *ChallengeEngine) CreateChallenge(userID string, initialBalance, maxDailyLoss, maxTotalLoss, profitTarget float64) (*models.Challenge, error) {
	var ch models.Challenge
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Challenge{}).
			Where("user_id = ? AND status = ?", userID, models.StatusActive).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveChallengeExists
		}

		ch = models.Challenge{
			ID:             uuid.NewString(),
			UserID:         userID,
			InitialBalance: initialBalance,
			CurrentBalance: initialBalance,
			Status:         models.StatusActive,
			StartDate:      e.Now(),
			MaxDailyLoss:   maxDailyLoss,
			MaxTotalLoss:   maxTotalLoss,
			ProfitTarget:   profitTarget,
		}
		return tx.Create(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Challenge %s created for user %s (balance %.2f)", ch.ID, userID, initialBalance)
	return &ch, nil
}

// PerformanceMetrics builds the detailed per-challenge report, including the
// win rate derived from the same opposite-side matching rule the P&L uses.
func (e *ChallengeEngine) PerformanceMetrics(challengeID string) (*models.PerformanceMetrics, error) {
	var ch models.Challenge
	if err := e.DB.First(&ch, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}

	trades, err := e.tradesForChallenge(e.DB, ch.ID)
	if err != nil {
		return nil, err
	}

	var winning int64
	for i, trade := range trades {
		// Scan backwards for the most recent opposite-side trade on the
		// same asset; this trade wins when closing that one at a better price.
		for j := i - 1; j >= 0; j-- {
			prev := trades[j]
			if prev.AssetName != trade.AssetName || prev.Side != models.OppositeSide(trade.Side) {
				continue
			}
			if trade.Side == models.SideSell && trade.EntryPrice > prev.EntryPrice {
				winning++
			} else if trade.Side == models.SideBuy && prev.EntryPrice > trade.EntryPrice {
				winning++
			}
			break
		}
	}

	dailyPct, err := e.dailyChangePct(e.DB, &ch)
	if err != nil {
		return nil, err
	}

	total := int64(len(trades))
	winRate := 0.0
	if total > 0 {
		winRate = float64(winning) / float64(total) * 100
	}

	return &models.PerformanceMetrics{
		ChallengeID:           ch.ID,
		UserID:                ch.UserID,
		Status:                ch.Status,
		InitialBalance:        ch.InitialBalance,
		CurrentBalance:        ch.CurrentBalance,
		TotalChangePercentage: TotalChangePct(&ch),
		DailyChangePercentage: dailyPct,
		MaxDailyLossThreshold: ch.MaxDailyLoss,
		MaxTotalLossThreshold: ch.MaxTotalLoss,
		ProfitTargetThreshold: ch.ProfitTarget,
		TotalTrades:           total,
		WinningTrades:         winning,
		WinRate:               winRate,
		StartDate:             ch.StartDate,
		EndDate:               ch.EndDate,
	}, nil
}

// SetBalance overrides the current balance and re-runs the evaluation in the
// same transaction. Admin/debug path; rejects unknown challenges.
func (e *ChallengeEngine) SetBalance(challengeID string, newBalance float64) (*models.Challenge, error) {
	lock := e.lockFor(challengeID)
	lock.Lock()
	defer lock.Unlock()

	var ch models.Challenge
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ch, "id = ?", challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return err
		}
		ch.CurrentBalance = newBalance
		if ch.Status == models.StatusActive {
			if err := e.reevaluate(tx, &ch); err != nil {
				return err
			}
		}
		return tx.Save(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// String implements a terse diagnostic form used in logs.
func (c EngineConfig) String() string {
	return fmt.Sprintf("trade qty %.0f, daily estimate qty %.0f", c.DefaultTradeQuantity, c.DailyEstimateQuantity)
}
