package model

import (
	"fmt"
	"strings"
	"time"
)

// ListingStatus distinguishes live listings from completed sales.
type ListingStatus string

const (
	StatusActive ListingStatus = "active"
	StatusSold   ListingStatus = "sold"
)

// ListingRecord is the canonical listing shape every provider normalizes
// into. Records are immutable once built; analysis only reads them.
type ListingRecord struct {
	ID             string
	Title          string
	Price          float64
	ShippingCost   float64
	Condition      string
	GradingCompany string
	ImageURL       string
	URL            string
	Source         string
	ObservedAt     time.Time
	Status         ListingStatus
}

// TotalCost is the landed cost of acquiring the listing.
func (l ListingRecord) TotalCost() float64 {
	return l.Price + l.ShippingCost
}

// SearchQuery describes one card search. Built once per search, never
// mutated.
type SearchQuery struct {
	Keywords       string
	Sport          string
	Player         string
	Year           string
	Set            string
	Grade          string
	GradingCompany string
	MinPrice       float64
	MaxPrice       float64
	MaxResults     int
	SoldDays       int
}

// Terms joins the free-text and structured parts into the string sent to
// providers. Empty parts are skipped.
func (q SearchQuery) Terms() string {
	parts := []string{q.Keywords, q.Player, q.Year, q.Set, q.Sport}
	if q.GradingCompany != "" && q.Grade != "" {
		parts = append(parts, q.GradingCompany+" "+q.Grade)
	}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// Normalized produces the canonical filter string used for cache
// fingerprints. Two queries that would hit a provider identically must
// normalize identically.
func (q SearchQuery) Normalized() string {
	return strings.ToLower(strings.Join([]string{
		strings.Join(strings.Fields(q.Terms()), " "),
		fmt.Sprintf("%.2f-%.2f", q.MinPrice, q.MaxPrice),
		fmt.Sprintf("max=%d", q.MaxResults),
		fmt.Sprintf("days=%d", q.SoldDays),
	}, "|"))
}

// MarketValueEstimate summarizes sold comparables for one query. Derived
// per query and never reused across queries with different filters.
type MarketValueEstimate struct {
	Mean         float64
	Median       float64
	Weighted     float64
	SampleSize   int
	LookbackDays int
}

// MarketValue returns the authoritative estimate: the recency-weighted
// average.
func (m MarketValueEstimate) MarketValue() float64 {
	return m.Weighted
}

// Opportunity pairs an active listing with the market value it undercuts.
// Ranked by DiscountPct descending, PotentialProfit breaking ties.
type Opportunity struct {
	Listing         ListingRecord
	Estimate        MarketValueEstimate
	DiscountPct     float64
	PotentialProfit float64
	ProfitMarginPct float64
}
