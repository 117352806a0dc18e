package models

import (
	"time"
)

// Price sources.
const (
	SourceInternational = "international"
	SourceCrypto        = "cryptocurrency"
	SourceMoroccan      = "moroccan"
)

// PriceQuote is a cached near-real-time price for one symbol. Quotes are
// best-effort: a failed upstream fetch yields a fallback price with Error
// and Note set rather than a request failure.
type PriceQuote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	Volume        *int64    `json:"volume,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Note          string    `json:"note,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// SignalIndicators are the mock technical indicators attached to a signal.
type SignalIndicators struct {
	Volatility float64 `json:"volatility"`
	Momentum   float64 `json:"momentum"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
}

// Signal is a mocked AI trading signal derived from the cached price of a
// symbol. Not financial advice, not even close.
type Signal struct {
	Symbol         string           `json:"symbol"`
	Signal         string           `json:"signal"` // buy, sell, hold
	Confidence     float64          `json:"confidence"`
	Recommendation string           `json:"recommendation"`
	Indicators     SignalIndicators `json:"indicators"`
	Timestamp      time.Time        `json:"timestamp"`
	Price          float64          `json:"price"`
}

// NewsItem is one curated financial headline.
type NewsItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Time        string `json:"time"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
}
