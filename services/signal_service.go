package services

import (
	"math/rand"
	"strings"
	"sync"

	"trade-challenge-system/models"

	"github.com/gofiber/fiber/v2"
)

// SignalService generates mocked AI trading signals from cached prices.
// There is no model behind this — the indicators are randomized, with the
// signal chosen from momentum/volatility heuristics so responses look
// coherent.
type SignalService struct {
	Prices *PriceService

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSignalService(prices *PriceService, seed int64) *SignalService {
	return &SignalService{
		Prices: prices,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *SignalService) uniform(lo, hi float64) float64 {
	return round2(lo + s.rng.Float64()*(hi-lo))
}

// GenerateSignal builds a signal for one symbol at the given price.
func (s *SignalService) GenerateSignal(symbol string, price float64) models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	volatility := s.uniform(0.5, 3.0)
	momentum := s.uniform(-2.0, 2.0)

	var signal, recommendation string
	var confidence float64
	switch {
	case momentum > 1.0 && volatility < 2.0:
		signal = models.SideBuy
		confidence = s.uniform(70, 95)
		recommendation = "Strong buy opportunity based on positive momentum and manageable volatility"
	case momentum < -1.0 && volatility > 1.5:
		signal = models.SideSell
		confidence = s.uniform(70, 95)
		recommendation = "Potential downturn detected with high volatility"
	case momentum > -0.5 && momentum < 0.5:
		signal = "hold"
		confidence = s.uniform(60, 85)
		recommendation = "Market appears stable, hold position"
	default:
		choices := []string{models.SideBuy, models.SideSell, "hold"}
		signal = choices[s.rng.Intn(len(choices))]
		confidence = s.uniform(50, 80)
		recommendation = "Mixed signals detected, exercise caution"
	}

	// Bitcoin runs hotter than everything else.
	if strings.Contains(strings.ToUpper(symbol), "BTC") {
		volatility = s.uniform(2.0, 5.0)
		if signal == "hold" && s.rng.Float64() > 0.3 {
			signal = []string{models.SideBuy, models.SideSell}[s.rng.Intn(2)]
			confidence = round2(confidence * 0.9)
		}
	}

	return models.Signal{
		Symbol:         symbol,
		Signal:         signal,
		Confidence:     confidence,
		Recommendation: recommendation,
		Indicators: models.SignalIndicators{
			Volatility: volatility,
			Momentum:   momentum,
			RSI:        s.uniform(30, 70),
			MACD:       s.uniform(-1, 1),
		},
		Timestamp: s.Prices.Now(),
		Price:     price,
	}
}

// GetSignal serves a signal for one ticker.
func (s *SignalService) GetSignal(c *fiber.Ctx) error {
	ticker := c.Params("ticker")
	if ticker == "" {
		return c.Status(400).JSON(fiber.Map{"error": "ticker is required"})
	}

	quote := s.Prices.GetCachedPrice(ticker)
	if quote.Error != "" && quote.Price == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error":  "could not fetch price data for " + ticker,
			"symbol": ticker,
		})
	}

	return c.JSON(s.GenerateSignal(quote.Symbol, quote.Price))
}

type signalsRequest struct {
	Tickers []string `json:"tickers"`
}

// GetSignals serves signals for a list of tickers. Per-ticker price failures
// are reported inline rather than failing the batch.
func (s *SignalService) GetSignals(c *fiber.Ctx) error {
	var req signalsRequest
	if err := c.BodyParser(&req); err != nil || len(req.Tickers) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "tickers list is required"})
	}

	results := make(map[string]interface{}, len(req.Tickers))
	for _, ticker := range req.Tickers {
		quote := s.Prices.GetCachedPrice(ticker)
		if quote.Error != "" && quote.Price == 0 {
			results[ticker] = fiber.Map{
				"symbol":    ticker,
				"error":     quote.Error,
				"timestamp": s.Prices.Now(),
			}
			continue
		}
		results[ticker] = s.GenerateSignal(quote.Symbol, quote.Price)
	}

	return c.JSON(fiber.Map{
		"signals":   results,
		"count":     len(results),
		"timestamp": s.Prices.Now(),
	})
}
