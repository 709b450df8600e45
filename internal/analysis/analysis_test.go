package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/testutil"
)

func pinnedAnalyzer(cfg Config, now time.Time) *Analyzer {
	a := New(cfg)
	a.Now = func() time.Time { return now }
	return a
}

func TestMedian(t *testing.T) {
	cases := []struct {
		in   []float64
		want float64
	}{
		{[]float64{5}, 5},
		{[]float64{100, 110, 90, 105, 95}, 100},   // odd count
		{[]float64{100, 110, 90, 105}, 102.5},     // even count: mean of middle two
		{[]float64{2, 1}, 1.5},
		{nil, 0},
	}
	for _, c := range cases {
		if got := median(append([]float64(nil), c.in...)); got != c.want {
			t.Errorf("median(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMarketValue_InsufficientSamples(t *testing.T) {
	f := testutil.NewFactory(1)
	a := pinnedAnalyzer(Config{MinSoldSamples: 5, SoldDays: 30, RecencyWeight: 0.7}, f.Now())

	sold := []model.ListingRecord{
		f.SoldListing(100, 1),
		f.SoldListing(105, 2),
		f.SoldListing(95, 3),
	}

	est, ok := a.MarketValue(sold)
	if ok {
		t.Fatal("3 comps with min 5 should report no signal")
	}
	if est.SampleSize != 3 {
		t.Errorf("sample size = %d, want 3", est.SampleSize)
	}

	// And Analyze returns an empty result, not an error or panic
	if opps := a.Analyze([]model.ListingRecord{f.ActiveListing(50)}, sold); len(opps) != 0 {
		t.Errorf("expected no opportunities, got %d", len(opps))
	}
}

func TestMarketValue_LookbackFiltersOldSales(t *testing.T) {
	f := testutil.NewFactory(2)
	a := pinnedAnalyzer(Config{MinSoldSamples: 2, SoldDays: 30, RecencyWeight: 1}, f.Now())

	sold := []model.ListingRecord{
		f.SoldListing(100, 1),
		f.SoldListing(200, 5),
		f.SoldListing(9999, 45), // outside the 30-day window
	}

	est, ok := a.MarketValue(sold)
	if !ok {
		t.Fatal("expected enough in-window comps")
	}
	if est.SampleSize != 2 {
		t.Errorf("sample size = %d, want 2 (stale sale excluded)", est.SampleSize)
	}
	if est.Mean != 150 {
		t.Errorf("mean = %v, want 150", est.Mean)
	}
}

func TestMarketValue_RecencyWeighting(t *testing.T) {
	f := testutil.NewFactory(3)
	a := pinnedAnalyzer(Config{MinSoldSamples: 2, SoldDays: 30, RecencyWeight: 0.5}, f.Now())

	// Equal prices at different ages: the weighted average of {100@0d,
	// 100@30d} is still 100, but mixing prices shows the pull.
	sold := []model.ListingRecord{
		f.SoldListing(100, 0),  // weight 0.5^0 = 1
		f.SoldListing(200, 30), // weight 0.5^1 = 0.5
	}
	est, ok := a.MarketValue(sold)
	if !ok {
		t.Fatal("expected estimate")
	}

	// (100*1 + 200*0.5) / 1.5 = 133.33; plain mean is 150. The recent
	// sale must pull the weighted value toward itself.
	if est.Weighted >= est.Mean {
		t.Errorf("weighted %v should sit below mean %v when the cheap sale is recent", est.Weighted, est.Mean)
	}
	want := (100*1 + 200*0.5) / 1.5
	if math.Abs(est.Weighted-want) > 1e-9 {
		t.Errorf("weighted = %v, want %v", est.Weighted, want)
	}
}

func TestMarketValue_WeightMonotonicInAge(t *testing.T) {
	now := time.Now()
	cfg := Config{MinSoldSamples: 2, SoldDays: 30, RecencyWeight: 0.7}

	// Same two prices; swapping which one is recent must move the
	// weighted average toward whichever price is newer.
	recentCheap := pinnedAnalyzer(cfg, now).MarketValueFor(t, now, 80, 1, 120, 25)
	recentDear := pinnedAnalyzer(cfg, now).MarketValueFor(t, now, 80, 25, 120, 1)

	if !(recentCheap < recentDear) {
		t.Errorf("weighted value should follow the recent sale: cheap-recent %v, dear-recent %v",
			recentCheap, recentDear)
	}
}

// MarketValueFor is a test helper building two sold comps and returning
// the weighted estimate.
func (a *Analyzer) MarketValueFor(t *testing.T, now time.Time, p1 float64, age1 int, p2 float64, age2 int) float64 {
	t.Helper()
	sold := []model.ListingRecord{
		{Price: p1, ObservedAt: now.AddDate(0, 0, -age1), Status: model.StatusSold},
		{Price: p2, ObservedAt: now.AddDate(0, 0, -age2), Status: model.StatusSold},
	}
	est, ok := a.MarketValue(sold)
	if !ok {
		t.Fatal("expected estimate")
	}
	return est.Weighted
}

func TestAnalyze_EndToEndScenario(t *testing.T) {
	f := testutil.NewFactory(4)
	a := pinnedAnalyzer(Config{
		DiscountThreshold: 20,
		MinSoldSamples:    5,
		RecencyWeight:     0.7,
		SoldDays:          30,
	}, f.Now())

	// All comps sold today, so every weight is 1 and the market value is
	// the plain mean: 100.
	sold := []model.ListingRecord{
		f.SoldListing(100, 0),
		f.SoldListing(110, 0),
		f.SoldListing(90, 0),
		f.SoldListing(105, 0),
		f.SoldListing(95, 0),
	}
	active := []model.ListingRecord{f.ActiveListing(70)}

	opps := a.Analyze(active, sold)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	o := opps[0]
	if math.Abs(o.Estimate.MarketValue()-100) > 1e-9 {
		t.Errorf("market value = %v, want 100", o.Estimate.MarketValue())
	}
	if math.Abs(o.DiscountPct-30) > 1e-9 {
		t.Errorf("discount = %v, want 30", o.DiscountPct)
	}
	if math.Abs(o.PotentialProfit-30) > 1e-9 {
		t.Errorf("profit = %v, want 30", o.PotentialProfit)
	}
	if math.Abs(o.ProfitMarginPct-30.0/70*100) > 1e-9 {
		t.Errorf("margin = %v", o.ProfitMarginPct)
	}
	if o.Estimate.Median != 100 {
		t.Errorf("median = %v, want 100", o.Estimate.Median)
	}
}

func TestAnalyze_PriceFilters(t *testing.T) {
	f := testutil.NewFactory(5)
	a := pinnedAnalyzer(Config{
		DiscountThreshold: 10,
		MinSoldSamples:    2,
		RecencyWeight:     1,
		SoldDays:          30,
		MinPrice:          20,
		MaxPrice:          80,
	}, f.Now())

	sold := []model.ListingRecord{f.SoldListing(100, 1), f.SoldListing(100, 2)}
	active := []model.ListingRecord{
		f.ActiveListing(0),   // invalid: zero price
		f.ActiveListing(-5),  // invalid: negative price
		f.ActiveListing(10),  // below MinPrice
		f.ActiveListing(85),  // above MaxPrice
		f.ActiveListing(60),  // the only survivor: 40% discount
	}

	opps := a.Analyze(active, sold)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if opps[0].Listing.Price != 60 {
		t.Errorf("wrong listing survived: %v", opps[0].Listing.Price)
	}
}

func TestAnalyze_ThresholdAndRanking(t *testing.T) {
	f := testutil.NewFactory(6)
	a := pinnedAnalyzer(Config{
		DiscountThreshold: 20,
		MinSoldSamples:    2,
		RecencyWeight:     1,
		SoldDays:          30,
	}, f.Now())

	sold := []model.ListingRecord{f.SoldListing(100, 1), f.SoldListing(100, 2)}
	active := []model.ListingRecord{
		f.ActiveListing(85), // 15% discount: below threshold
		f.ActiveListing(70), // 30%
		f.ActiveListing(50), // 50%
		f.ActiveListing(75), // 25%
	}

	opps := a.Analyze(active, sold)
	if len(opps) != 3 {
		t.Fatalf("expected 3 opportunities, got %d", len(opps))
	}
	wantOrder := []float64{50, 70, 75}
	for i, want := range wantOrder {
		if opps[i].Listing.Price != want {
			t.Errorf("rank %d: price %v, want %v", i, opps[i].Listing.Price, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	f := testutil.NewFactory(7)
	a := pinnedAnalyzer(Config{
		DiscountThreshold: 20,
		MinSoldSamples:    2,
		RecencyWeight:     1,
		SoldDays:          30,
	}, f.Now())

	sold := []model.ListingRecord{f.SoldListing(100, 1), f.SoldListing(100, 2)}
	active := []model.ListingRecord{f.ActiveListing(70), f.ActiveListing(50)}

	s := Summarize(a.Analyze(active, sold))
	if s.TotalDeals != 2 {
		t.Fatalf("total deals = %d", s.TotalDeals)
	}
	if s.MaxDiscountPct != 50 {
		t.Errorf("max discount = %v", s.MaxDiscountPct)
	}
	if s.TotalPotentialProfit != 80 {
		t.Errorf("total profit = %v", s.TotalPotentialProfit)
	}
	if s.AvgPotentialProfit != 40 {
		t.Errorf("avg profit = %v", s.AvgPotentialProfit)
	}

	if empty := Summarize(nil); empty.TotalDeals != 0 {
		t.Errorf("empty summary should be zero: %+v", empty)
	}
}
