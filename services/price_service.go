package services

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"trade-challenge-system/models"

	"github.com/gofiber/fiber/v2"
)

// CommonSymbols is the fixed set kept warm by the background refresh job.
var CommonSymbols = []string{"AAPL", "TSLA", "BTC-USD", "IAM", "ATW"}

// moroccanSymbols are the Casablanca exchange tickers served by the local mock.
var moroccanSymbols = map[string]float64{
	"IAM": 11.50,  // Maroc Telecom, MAD
	"ATW": 480.00, // Attijariwafa Bank, MAD
}

var cryptoFallbackPrices = map[string]float64{
	"BTC-USD": 45000.00,
	"ETH-USD": 2500.00,
	"XRP-USD": 0.50,
	"LTC-USD": 70.00,
	"BCH-USD": 300.00,
}

const (
	defaultPriceTTL       = 30 * time.Second
	defaultCryptoFallback = 100.00
	yahooChartBaseURL     = "https://query1.finance.yahoo.com"
)

// PriceService maintains a best-effort, time-bounded cache of near-real-time
// prices. Cached quotes are considered fresh for TTL; staleness is tolerated
// by design and fetch failures degrade to fallback values, never request
// failures.
type PriceService struct {
	TTL    time.Duration
	Now    func() time.Time
	Client *http.Client

	// BaseURL of the Yahoo Finance chart API; overridable in tests.
	BaseURL string

	mu    sync.Mutex
	cache map[string]models.PriceQuote
}

func NewPriceService(client *http.Client) *PriceService {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PriceService{
		TTL:     defaultPriceTTL,
		Now:     func() time.Time { return time.Now().UTC() },
		Client:  client,
		BaseURL: yahooChartBaseURL,
		cache:   make(map[string]models.PriceQuote),
	}
}

// GetCachedPrice serves the cached quote when fresh, otherwise fetches and
// caches a new one. It never fails: upstream errors are folded into the
// quote's Error/Note fields.
func (s *PriceService) GetCachedPrice(symbol string) models.PriceQuote {
	key := strings.ToUpper(symbol)

	s.mu.Lock()
	if q, ok := s.cache[key]; ok && s.Now().Sub(q.Timestamp) < s.TTL {
		s.mu.Unlock()
		return q
	}
	s.mu.Unlock()

	q := s.fetchQuote(key)

	s.mu.Lock()
	s.cache[key] = q
	s.mu.Unlock()
	return q
}

// fetchQuote dispatches on symbol class: Moroccan tickers go to the local
// mock, crypto symbols to the crypto path, everything else to Yahoo.
func (s *PriceService) fetchQuote(symbol string) models.PriceQuote {
	if _, ok := moroccanSymbols[symbol]; ok {
		return s.moroccanQuote(symbol)
	}
	if isCryptoSymbol(symbol) {
		return s.cryptoQuote(symbol)
	}
	return s.internationalQuote(symbol)
}

func isCryptoSymbol(symbol string) bool {
	if strings.HasSuffix(symbol, "-USD") || strings.HasSuffix(symbol, "-BTC") {
		return true
	}
	switch symbol {
	case "BTC", "ETH", "XRP", "LTC", "BCH":
		return true
	}
	return false
}

// yahooChartResponse is the slice of the chart API payload we care about.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice  float64 `json:"regularMarketPrice"`
				RegularMarketVolume int64   `json:"regularMarketVolume"`
				PreviousClose       float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// fetchYahooPrice queries the Yahoo Finance chart endpoint for the latest price.
func (s *PriceService) fetchYahooPrice(symbol string) (float64, *int64, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", s.BaseURL, symbol)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", "trade-challenge-system/1.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("yahoo chart API returned status %d", resp.StatusCode)
	}

	var payload yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if payload.Chart.Error != nil {
		return 0, nil, fmt.Errorf("yahoo chart API error: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return 0, nil, fmt.Errorf("no chart data for %s", symbol)
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 && meta.PreviousClose != 0 {
		return round2(meta.PreviousClose), nil, nil
	}
	volume := meta.RegularMarketVolume
	return round2(meta.RegularMarketPrice), &volume, nil
}

// internationalQuote fetches a US equity price; failures yield a zero-price
// quote carrying the error, matching the degradation contract.
func (s *PriceService) internationalQuote(symbol string) models.PriceQuote {
	q := models.PriceQuote{
		Symbol:    symbol,
		Timestamp: s.Now(),
		Source:    models.SourceInternational,
	}

	price, volume, err := s.fetchYahooPrice(symbol)
	if err != nil {
		log.Printf("❌ Error fetching international price for %s: %v", symbol, err)
		q.Error = err.Error()
		return q
	}
	q.Price = price
	q.Volume = volume
	return q
}

// cryptoQuote normalizes the ticker to XXX-USD, fetches it, and falls back to
// a hardcoded default price on failure so the trading demo keeps working.
func (s *PriceService) cryptoQuote(symbol string) models.PriceQuote {
	if !strings.HasSuffix(symbol, "-USD") {
		symbol = symbol + "-USD"
	}
	q := models.PriceQuote{
		Symbol:    symbol,
		Timestamp: s.Now(),
		Source:    models.SourceCrypto,
	}

	price, volume, err := s.fetchYahooPrice(symbol)
	if err == nil && price > 0 {
		q.Price = price
		q.Volume = volume
		return q
	}

	fallback, ok := cryptoFallbackPrices[symbol]
	if !ok {
		fallback = defaultCryptoFallback
	}
	q.Price = fallback
	if err != nil {
		log.Printf("❌ Error fetching cryptocurrency price for %s: %v", symbol, err)
		q.Note = fmt.Sprintf("using default price due to fetch error: %v", err)
	} else {
		q.Note = "using default price: upstream returned no data"
	}
	return q
}

// moroccanQuote serves a deterministic mock of the Casablanca exchange for
// IAM and ATW. The price oscillates gently around a fixed base so the cache
// and UI have something to show; bourse.ma has no public API.
func (s *PriceService) moroccanQuote(symbol string) models.PriceQuote {
	base := moroccanSymbols[symbol]
	now := s.Now()

	minuteOfDay := float64(now.Hour()*60 + now.Minute())
	change := round2(base * 0.005 * math.Sin(minuteOfDay/45))
	price := round2(base + change)
	changePercent := round2(change / base * 100)
	volume := int64(10000 + 100*(now.Hour()+1))

	return models.PriceQuote{
		Symbol:        symbol,
		Price:         price,
		Change:        &change,
		ChangePercent: &changePercent,
		Volume:        &volume,
		Timestamp:     now,
		Source:        models.SourceMoroccan,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// --- HTTP handlers ---

// GetPrice serves the cached/near-real-time price for one symbol.
func (s *PriceService) GetPrice(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	if symbol == "" {
		return c.Status(400).JSON(fiber.Map{"error": "symbol is required"})
	}
	return c.JSON(s.GetCachedPrice(symbol))
}

// GetCommonPrices serves the whole warm symbol set in one response.
func (s *PriceService) GetCommonPrices(c *fiber.Ctx) error {
	prices := make(map[string]models.PriceQuote, len(CommonSymbols))
	for _, symbol := range CommonSymbols {
		prices[symbol] = s.GetCachedPrice(symbol)
	}
	return c.JSON(fiber.Map{
		"prices":    prices,
		"timestamp": s.Now(),
	})
}

// financialNews is the curated fallback headline set; there is no live news
// upstream wired in.
var financialNews = []models.NewsItem{
	{
		ID:          1,
		Title:       "Markets show resilience amid economic uncertainty",
		Description: "Global markets demonstrate stability despite ongoing challenges.",
		Source:      "Financial News",
		Time:        "Il y a 15 minutes",
		Type:        "general",
		Priority:    "medium",
	},
	{
		ID:          2,
		Title:       "Federal Reserve maintains cautious stance",
		Description: "Central bank signals potential pause in rate hikes.",
		Source:      "Reuters",
		Time:        "Il y a 45 minutes",
		Type:        "economic",
		Priority:    "high",
	},
	{
		ID:          3,
		Title:       "Casablanca exchange extends winning streak",
		Description: "MASI index closes higher for the fifth consecutive session.",
		Source:      "Bourse de Casablanca",
		Time:        "Il y a 2 heures",
		Type:        "regional",
		Priority:    "low",
	},
}

// GetNews serves the curated financial headlines.
func (s *PriceService) GetNews(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"news": financialNews})
}
