package services

import (
	"net/http"
	"testing"

	"trade-challenge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignal_ShapeAndRanges(t *testing.T) {
	prices := NewPriceService(nil)
	svc := NewSignalService(prices, 42)

	for i := 0; i < 50; i++ {
		sig := svc.GenerateSignal("AAPL", 187.23)

		assert.Contains(t, []string{models.SideBuy, models.SideSell, "hold"}, sig.Signal)
		assert.GreaterOrEqual(t, sig.Confidence, 45.0)
		assert.LessOrEqual(t, sig.Confidence, 95.0)
		assert.GreaterOrEqual(t, sig.Indicators.RSI, 30.0)
		assert.LessOrEqual(t, sig.Indicators.RSI, 70.0)
		assert.GreaterOrEqual(t, sig.Indicators.MACD, -1.0)
		assert.LessOrEqual(t, sig.Indicators.MACD, 1.0)
		assert.Equal(t, 187.23, sig.Price)
		assert.NotEmpty(t, sig.Recommendation)
	}
}

func TestGenerateSignal_BitcoinRunsHotter(t *testing.T) {
	prices := NewPriceService(nil)
	svc := NewSignalService(prices, 7)

	for i := 0; i < 50; i++ {
		sig := svc.GenerateSignal("BTC-USD", 45000)
		require.GreaterOrEqual(t, sig.Indicators.Volatility, 2.0)
		require.LessOrEqual(t, sig.Indicators.Volatility, 5.0)
	}
}

func TestGetSignal_FailsWhenPriceUnavailable(t *testing.T) {
	svc, _, done := newYahooStub(t, 0, http.StatusInternalServerError)
	defer done()
	signals := NewSignalService(svc, 1)

	app := newMarketTestApp(svc, signals)

	resp := doRequest(t, app, "GET", "/ai/signals/NVDA", "", "")
	assert.Equal(t, 400, resp.status)
	assert.Contains(t, resp.body, "could not fetch price data")
}

func TestGetSignals_BatchReportsPerTickerErrors(t *testing.T) {
	svc, _, done := newYahooStub(t, 187.23, http.StatusOK)
	defer done()
	signals := NewSignalService(svc, 1)

	app := newMarketTestApp(svc, signals)

	resp := doRequest(t, app, "POST", "/ai/signals", `{"tickers":["AAPL","IAM"]}`, "")
	assert.Equal(t, 200, resp.status)
	assert.Contains(t, resp.body, `"AAPL"`)
	assert.Contains(t, resp.body, `"IAM"`)

	resp = doRequest(t, app, "POST", "/ai/signals", `{}`, "")
	assert.Equal(t, 400, resp.status)
}
