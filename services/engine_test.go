package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"trade-challenge-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Single connection: keeps the in-memory DB alive and serializes writes.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Challenge{}, &models.Trade{}))
	return db
}

func newTestEngine(t *testing.T) (*ChallengeEngine, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	engine := NewChallengeEngine(db, DefaultEngineConfig)
	return engine, db
}

func seedUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     "trader-" + uuid.NewString()[:8],
		Email:        uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedChallenge(t *testing.T, e *ChallengeEngine, db *gorm.DB, initial, maxDaily, maxTotal, target float64) models.Challenge {
	t.Helper()
	user := seedUser(t, db)
	ch, err := e.CreateChallenge(user.ID, initial, maxDaily, maxTotal, target)
	require.NoError(t, err)
	return *ch
}

func TestSubmitTrade_LossBreachesTotalThreshold(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)

	result, err := engine.SubmitTrade(ch.ID, "AAPL", 80, "sell", 50)
	require.NoError(t, err)

	// (80-100)*50 = -1000 → balance 4000 → total change -20% < -10%
	assert.Equal(t, -1000.0, result.Pnl)
	assert.Equal(t, 4000.0, result.Challenge.CurrentBalance)
	assert.Equal(t, models.StatusFailed, result.Challenge.Status)
	require.NotNil(t, result.Challenge.EndDate)
}

func TestSubmitTrade_ProfitReachesTarget(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)

	result, err := engine.SubmitTrade(ch.ID, "AAPL", 130, "sell", 50)
	require.NoError(t, err)

	// (130-100)*50 = +1500 → balance 6500 → total change +30% ≥ 20%
	assert.Equal(t, 1500.0, result.Pnl)
	assert.Equal(t, 6500.0, result.Challenge.CurrentBalance)
	assert.Equal(t, models.StatusFunded, result.Challenge.Status)
	require.NotNil(t, result.Challenge.EndDate)
}

func TestSubmitTrade_RejectedOnTerminalChallenge(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	_, err = engine.SubmitTrade(ch.ID, "AAPL", 80, "sell", 50)
	require.NoError(t, err)

	// Challenge is failed now; further submissions must not mutate anything.
	_, err = engine.SubmitTrade(ch.ID, "AAPL", 200, "buy", 50)
	assert.ErrorIs(t, err, ErrChallengeNotActive)

	var reloaded models.Challenge
	require.NoError(t, db.First(&reloaded, "id = ?", ch.ID).Error)
	assert.Equal(t, models.StatusFailed, reloaded.Status)
	assert.Equal(t, 4000.0, reloaded.CurrentBalance)

	var count int64
	db.Model(&models.Trade{}).Where("challenge_id = ?", ch.ID).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestSubmitTrade_InvalidSide(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "short", 50)
	assert.ErrorIs(t, err, ErrInvalidTradeSide)

	var count int64
	db.Model(&models.Trade{}).Where("challenge_id = ?", ch.ID).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestSubmitTrade_UnknownChallenge(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.SubmitTrade(uuid.NewString(), "AAPL", 100, "buy", 50)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestSubmitTrade_UnmatchedTradeRealizesNothing(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	result, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Pnl)
	assert.Equal(t, 5000.0, result.Challenge.CurrentBalance)
	assert.Equal(t, models.StatusActive, result.Challenge.Status)
}

func TestSubmitTrade_BalanceIdentity(t *testing.T) {
	// current_balance must always equal initial_balance plus the sum of
	// realized P&L returned, whatever the trade sequence.
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)

	steps := []struct {
		asset string
		price float64
		side  string
	}{
		{"AAPL", 100, "buy"},
		{"TSLA", 200, "buy"},
		{"AAPL", 105, "sell"},
		{"TSLA", 190, "sell"},
		{"AAPL", 95, "buy"},
		{"BTC-USD", 45000, "buy"},
	}

	var sum float64
	var last *SubmitTradeResult
	for _, step := range steps {
		result, err := engine.SubmitTrade(ch.ID, step.asset, step.price, step.side, 50)
		require.NoError(t, err)
		sum += result.Pnl
		last = result
	}

	assert.InDelta(t, 5000+sum, last.Challenge.CurrentBalance, 1e-9)
}

func TestSubmitTrade_PriorTradeMatchedRepeatedly(t *testing.T) {
	// Matching is "most recent opposite trade", not position-aware: a prior
	// trade is never consumed and can back several later matches.
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)

	first, err := engine.SubmitTrade(ch.ID, "AAPL", 110, "sell", 50)
	require.NoError(t, err)
	assert.Equal(t, 500.0, first.Pnl)

	second, err := engine.SubmitTrade(ch.ID, "AAPL", 120, "sell", 50)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, second.Pnl) // same buy@100 matched again

	assert.Equal(t, 6500.0, second.Challenge.CurrentBalance)
}

func TestSubmitTrade_SideNormalizedAndDefaultQuantity(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "BUY", 0)
	require.NoError(t, err)

	result, err := engine.SubmitTrade(ch.ID, "AAPL", 110, "Sell", 0)
	require.NoError(t, err)

	// default quantity of 50 applies when the caller omits it
	assert.Equal(t, 500.0, result.Pnl)
	assert.Equal(t, models.SideSell, result.Trade.Side)
}

func TestRulePriority_DailyLossCheckedFirst(t *testing.T) {
	// A challenge breaching both daily and total loss thresholds must fail,
	// with the daily rule evaluated first.
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)

	result, err := engine.SubmitTrade(ch.ID, "AAPL", 70, "sell", 50)
	require.NoError(t, err)

	// balance 3500: total -30% < -10%, daily estimate also breaches -5%
	assert.Equal(t, 3500.0, result.Challenge.CurrentBalance)
	assert.Equal(t, models.StatusFailed, result.Challenge.Status)
}

func TestEvaluateStatus_PriorityOverFunding(t *testing.T) {
	// Synthetic breach of both the daily-loss and profit-target rules: the
	// failure rules win regardless of the profit figure.
	now := time.Now().UTC()
	ch := models.Challenge{ID: "x", MaxDailyLoss: 5, MaxTotalLoss: 10, ProfitTarget: 20, Status: models.StatusActive}

	changed := evaluateStatus(&ch, 25, -6, now)
	assert.True(t, changed)
	assert.Equal(t, models.StatusFailed, ch.Status)
	require.NotNil(t, ch.EndDate)
	assert.Equal(t, now, *ch.EndDate)
}

func TestEvaluateStatus_NoTransitionInsideThresholds(t *testing.T) {
	ch := models.Challenge{ID: "x", MaxDailyLoss: 5, MaxTotalLoss: 10, ProfitTarget: 20, Status: models.StatusActive}
	changed := evaluateStatus(&ch, 5, -1, time.Now().UTC())
	assert.False(t, changed)
	assert.Equal(t, models.StatusActive, ch.Status)
	assert.Nil(t, ch.EndDate)
}

func TestTotalChangePct_ZeroInitialBalance(t *testing.T) {
	ch := models.Challenge{InitialBalance: 0, CurrentBalance: 1000}
	assert.Equal(t, 0.0, TotalChangePct(&ch))
}

func TestDailyChangePct_NoTradesToday(t *testing.T) {
	engine, db := newTestEngine(t)

	day1 := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	now := day1
	engine.Now = func() time.Time { return now }

	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)
	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	now = day1.Add(time.Minute)
	_, err = engine.SubmitTrade(ch.ID, "AAPL", 105, "sell", 50)
	require.NoError(t, err)

	// Next day, no trades yet: daily change must be 0 even though the total
	// change is not.
	now = day1.Add(24 * time.Hour)

	var reloaded models.Challenge
	require.NoError(t, db.First(&reloaded, "id = ?", ch.ID).Error)
	assert.Equal(t, 5250.0, reloaded.CurrentBalance)

	daily, err := engine.dailyChangePct(db, &reloaded)
	require.NoError(t, err)
	assert.Equal(t, 0.0, daily)
}

func TestDailyChangePct_EstimatesOpeningBalance(t *testing.T) {
	engine, db := newTestEngine(t)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	engine.Now = func() time.Time { return at }

	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)
	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)

	at = at.Add(time.Minute)
	result, err := engine.SubmitTrade(ch.ID, "AAPL", 120, "sell", 50)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, result.Challenge.CurrentBalance)

	// Estimation path uses quantity 10: today's sell contributes
	// (120-100)*10 = 200, so the opening estimate is 5800.
	daily, err := engine.dailyChangePct(db, &result.Challenge)
	require.NoError(t, err)
	assert.InDelta(t, (6000.0-5800.0)/5800.0*100, daily, 1e-9)
}

func TestDeleteTrade_ReevaluatesWithoutReversingPnl(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	sellResult, err := engine.SubmitTrade(ch.ID, "AAPL", 110, "sell", 50)
	require.NoError(t, err)
	assert.Equal(t, 5500.0, sellResult.Challenge.CurrentBalance)

	// Deleting the sell does NOT put its +500 back; the balance stands as-is.
	updated, err := engine.DeleteTrade(sellResult.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, 5500.0, updated.CurrentBalance)
	assert.Equal(t, models.StatusActive, updated.Status)

	var count int64
	db.Model(&models.Trade{}).Where("challenge_id = ?", ch.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestDeleteTrade_Unknown(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.DeleteTrade(uuid.NewString())
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestDeleteTrade_TerminalChallengeUntouched(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	buyResult, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	_, err = engine.SubmitTrade(ch.ID, "AAPL", 80, "sell", 50)
	require.NoError(t, err)

	updated, err := engine.DeleteTrade(buyResult.Trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, updated.Status)
	assert.Equal(t, 4000.0, updated.CurrentBalance)
}

func TestReevaluateChallenge_TerminalIsIdempotent(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	result, err := engine.SubmitTrade(ch.ID, "AAPL", 130, "sell", 50)
	require.NoError(t, err)
	require.Equal(t, models.StatusFunded, result.Challenge.Status)
	endDate := *result.Challenge.EndDate

	again, err := engine.ReevaluateChallenge(ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFunded, again.Status)
	require.NotNil(t, again.EndDate)
	assert.WithinDuration(t, endDate, *again.EndDate, time.Second)
}

func TestCreateChallenge_SingleActivePerUser(t *testing.T) {
	engine, db := newTestEngine(t)
	user := seedUser(t, db)

	first, err := engine.CreateChallenge(user.ID, 5000, 5, 10, 20)
	require.NoError(t, err)

	_, err = engine.CreateChallenge(user.ID, 5000, 5, 10, 20)
	assert.ErrorIs(t, err, ErrActiveChallengeExists)

	// Once the active challenge goes terminal, a new one is allowed.
	_, err = engine.SubmitTrade(first.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	_, err = engine.SubmitTrade(first.ID, "AAPL", 80, "sell", 50)
	require.NoError(t, err)

	_, err = engine.CreateChallenge(user.ID, 10000, 5, 10, 20)
	assert.NoError(t, err)
}

func TestSetBalance_TriggersEvaluation(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 5, 10, 20)

	updated, err := engine.SetBalance(ch.ID, 6100)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFunded, updated.Status) // +22% ≥ 20%

	// Terminal now: a later override changes the balance but never the status.
	downgraded, err := engine.SetBalance(ch.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFunded, downgraded.Status)
	assert.Equal(t, 100.0, downgraded.CurrentBalance)
}

func TestPerformanceMetrics(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)

	_, err := engine.SubmitTrade(ch.ID, "AAPL", 100, "buy", 50)
	require.NoError(t, err)
	_, err = engine.SubmitTrade(ch.ID, "AAPL", 110, "sell", 50) // winner
	require.NoError(t, err)
	_, err = engine.SubmitTrade(ch.ID, "AAPL", 120, "buy", 50) // loser vs sell@110
	require.NoError(t, err)

	metrics, err := engine.PerformanceMetrics(ch.ID)
	require.NoError(t, err)

	assert.EqualValues(t, 3, metrics.TotalTrades)
	assert.EqualValues(t, 1, metrics.WinningTrades)
	assert.InDelta(t, 100.0/3.0, metrics.WinRate, 1e-9)
	assert.Equal(t, models.StatusActive, metrics.Status)

	_, err = engine.PerformanceMetrics(uuid.NewString())
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestSubmitTrade_ConcurrentSubmissionsSerialized(t *testing.T) {
	engine, db := newTestEngine(t)
	ch := seedChallenge(t, engine, db, 5000, 99, 99, 1000)

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	engine.Now = func() time.Time { return t0 }
	_, err := engine.SubmitTrade(ch.ID, "TSLA", 100, "buy", 50)
	require.NoError(t, err)

	engine.Now = func() time.Time { return t0.Add(time.Minute) }

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.SubmitTrade(ch.ID, "TSLA", 110, "sell", 50)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Each sell matches the seed buy for +500; a lost update would drop some.
	var reloaded models.Challenge
	require.NoError(t, db.First(&reloaded, "id = ?", ch.ID).Error)
	assert.Equal(t, 5000.0+n*500.0, reloaded.CurrentBalance)
}
