package analysis

import (
	"math"

	"github.com/gopforever/sportscardbot/internal/model"
)

// Summary aggregates an opportunity set for the presentation layer.
type Summary struct {
	TotalDeals           int
	AvgDiscountPct       float64
	MaxDiscountPct       float64
	TotalPotentialProfit float64
	AvgPotentialProfit   float64
	MaxPotentialProfit   float64
}

// Summarize computes roll-up stats over opportunities. Values here cross
// the presentation boundary, so they are rounded to cents.
func Summarize(opps []model.Opportunity) Summary {
	if len(opps) == 0 {
		return Summary{}
	}

	var s Summary
	s.TotalDeals = len(opps)
	for _, o := range opps {
		s.TotalPotentialProfit += o.PotentialProfit
		s.AvgDiscountPct += o.DiscountPct
		if o.DiscountPct > s.MaxDiscountPct {
			s.MaxDiscountPct = o.DiscountPct
		}
		if o.PotentialProfit > s.MaxPotentialProfit {
			s.MaxPotentialProfit = o.PotentialProfit
		}
	}
	s.AvgDiscountPct = round2(s.AvgDiscountPct / float64(len(opps)))
	s.AvgPotentialProfit = round2(s.TotalPotentialProfit / float64(len(opps)))
	s.TotalPotentialProfit = round2(s.TotalPotentialProfit)
	s.MaxDiscountPct = round2(s.MaxDiscountPct)
	s.MaxPotentialProfit = round2(s.MaxPotentialProfit)
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
