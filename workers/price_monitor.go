// workers/price_monitor.go
package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/services"

	"github.com/shopspring/decimal"
)

// PriceFeed polls the spot-price oracle, pushes bitcoinPriceUpdate events
// and caches the last observed rates. It implements services.PriceSource,
// falling back to the cache when the oracle is briefly unreachable so a
// withdrawal request does not fail on a transient blip.
type PriceFeed struct {
	Source        services.PriceSource
	Pub           events.Publisher
	LocalCurrency string

	mu    sync.RWMutex
	cache map[string]decimal.Decimal // quote currency -> last known rate
}

func NewPriceFeed(source services.PriceSource, pub events.Publisher, localCurrency string) *PriceFeed {
	return &PriceFeed{
		Source:        source,
		Pub:           pub,
		LocalCurrency: localCurrency,
		cache:         make(map[string]decimal.Decimal),
	}
}

// Poll refreshes prices immediately and then on every tick until ctx ends.
func (f *PriceFeed) Poll(ctx context.Context, interval time.Duration) {
	log.Println("Starting price polling...")
	f.refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price polling stopped.")
			return
		case <-ticker.C:
			f.refresh(ctx)
		}
	}
}

func (f *PriceFeed) refresh(ctx context.Context) {
	usd, err := f.Source.Price(ctx, "BTC", "USD")
	if err != nil {
		log.Printf("❌ Error fetching BTC/USD price: %v", err)
		return
	}
	local, err := f.Source.Price(ctx, "BTC", f.LocalCurrency)
	if err != nil {
		log.Printf("❌ Error fetching BTC/%s price: %v", f.LocalCurrency, err)
		return
	}

	f.mu.Lock()
	f.cache["USD"] = usd
	f.cache[f.LocalCurrency] = local
	f.mu.Unlock()

	f.Pub.Emit(events.EventPriceUpdate, map[string]string{
		"priceUSD":   usd.StringFixed(2),
		"priceLocal": local.StringFixed(2),
		"currency":   f.LocalCurrency,
	})
}

// Price returns the live rate when the oracle answers, else the last cached
// rate for that quote currency.
func (f *PriceFeed) Price(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	price, err := f.Source.Price(ctx, base, quote)
	if err == nil {
		f.mu.Lock()
		f.cache[quote] = price
		f.mu.Unlock()
		return price, nil
	}

	f.mu.RLock()
	cached, ok := f.cache[quote]
	f.mu.RUnlock()
	if ok {
		log.Printf("⚠️  Price oracle unavailable for %s/%s, using last known rate: %v", base, quote, err)
		return cached, nil
	}
	return decimal.Zero, err
}
