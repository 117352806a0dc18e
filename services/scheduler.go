// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartRefreshScheduler refreshes the common symbol set on a fixed interval,
// independent of request traffic. Failures are logged and never propagate to
// request-serving paths.
func (s *PriceService) StartRefreshScheduler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			for _, symbol := range CommonSymbols {
				quote := s.GetCachedPrice(symbol)
				if quote.Error != "" {
					log.Printf("[PriceRefresh] %s: %s", symbol, quote.Error)
					continue
				}
				log.Printf("[PriceRefresh] Updated cache for %s: %.2f", symbol, quote.Price)
			}
		}),
	)
}
