package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/gopforever/sportscardbot/internal/model"
)

// Config holds the valuation thresholds. Passed in as plain values; the
// analyzer never reads files or environment.
type Config struct {
	DiscountThreshold float64 // minimum discount % to flag a deal
	MinSoldSamples    int     // comps required before estimating value
	RecencyWeight     float64 // [0,1]; lower discounts old sales harder
	SoldDays          int     // lookback window for comps, in days
	MinPrice          float64 // active listings below this are ignored
	MaxPrice          float64 // 0 = no upper bound
}

// DefaultConfig mirrors the thresholds the bot ships with.
func DefaultConfig() Config {
	return Config{
		DiscountThreshold: 20.0,
		MinSoldSamples:    5,
		RecencyWeight:     0.7,
		SoldDays:          30,
	}
}

// Analyzer turns sold comparables and active listings into ranked
// opportunities.
type Analyzer struct {
	cfg Config

	// Now is the clock used for sale ages. Tests pin it; production
	// leaves it nil for time.Now.
	Now func() time.Time
}

func New(cfg Config) *Analyzer {
	if cfg.MinSoldSamples < 1 {
		cfg.MinSoldSamples = 1
	}
	if cfg.SoldDays < 1 {
		cfg.SoldDays = 30
	}
	if cfg.RecencyWeight < 0 {
		cfg.RecencyWeight = 0
	}
	if cfg.RecencyWeight > 1 {
		cfg.RecencyWeight = 1
	}
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// MarketValue computes the estimate from sold comps. ok is false when
// fewer than MinSoldSamples usable comps fall inside the lookback window —
// a legitimate no-signal outcome, not an error.
func (a *Analyzer) MarketValue(sold []model.ListingRecord) (model.MarketValueEstimate, bool) {
	now := a.now()
	cutoff := now.AddDate(0, 0, -a.cfg.SoldDays)

	type sample struct {
		price float64
		age   float64 // days
	}
	var samples []sample
	for _, rec := range sold {
		if rec.Status != model.StatusSold || rec.Price <= 0 {
			continue
		}
		if rec.ObservedAt.IsZero() || rec.ObservedAt.Before(cutoff) || rec.ObservedAt.After(now) {
			continue
		}
		age := now.Sub(rec.ObservedAt).Hours() / 24
		if age < 0 {
			age = 0
		}
		samples = append(samples, sample{price: rec.Price, age: age})
	}

	if len(samples) < a.cfg.MinSoldSamples {
		return model.MarketValueEstimate{SampleSize: len(samples), LookbackDays: a.cfg.SoldDays}, false
	}

	prices := make([]float64, len(samples))
	var sum, weightedSum, weightTotal float64
	for i, s := range samples {
		prices[i] = s.price
		sum += s.price

		// Exponential decay over the lookback window: a sale from today
		// weighs 1, a sale soldDays old weighs recencyWeight.
		ageFraction := s.age / float64(a.cfg.SoldDays)
		w := math.Pow(a.cfg.RecencyWeight, ageFraction)
		weightedSum += s.price * w
		weightTotal += w
	}

	weighted := sum / float64(len(samples))
	if weightTotal > 0 {
		weighted = weightedSum / weightTotal
	}

	return model.MarketValueEstimate{
		Mean:         sum / float64(len(samples)),
		Median:       median(prices),
		Weighted:     weighted,
		SampleSize:   len(samples),
		LookbackDays: a.cfg.SoldDays,
	}, true
}

// Analyze compares active listings against the comp-derived market value
// and returns deals meeting the discount threshold, best first. Too few
// comps yields an empty slice, never a panic or error.
func (a *Analyzer) Analyze(active, sold []model.ListingRecord) []model.Opportunity {
	estimate, ok := a.MarketValue(sold)
	if !ok {
		return nil
	}
	marketValue := estimate.MarketValue()
	if marketValue <= 0 {
		// Discount is undefined without a positive market value
		return nil
	}

	var opps []model.Opportunity
	for _, listing := range active {
		if listing.Status != model.StatusActive {
			continue
		}
		if listing.Price <= 0 {
			continue
		}
		if listing.Price < a.cfg.MinPrice {
			continue
		}
		if a.cfg.MaxPrice > 0 && listing.Price > a.cfg.MaxPrice {
			continue
		}

		discount := (marketValue - listing.Price) / marketValue * 100
		if discount < a.cfg.DiscountThreshold {
			continue
		}

		profit := marketValue - listing.Price
		opps = append(opps, model.Opportunity{
			Listing:         listing,
			Estimate:        estimate,
			DiscountPct:     discount,
			PotentialProfit: profit,
			ProfitMarginPct: profit / listing.Price * 100,
		})
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].DiscountPct != opps[j].DiscountPct {
			return opps[i].DiscountPct > opps[j].DiscountPct
		}
		return opps[i].PotentialProfit > opps[j].PotentialProfit
	})
	return opps
}

// median of xs; for even counts the average of the two middle values.
// xs is sorted in place.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid]
	}
	return (xs[mid-1] + xs[mid]) / 2
}
