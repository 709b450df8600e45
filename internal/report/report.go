// Package report renders ranked deal opportunities as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gopforever/sportscardbot/internal/analysis"
	"github.com/gopforever/sportscardbot/internal/model"
)

// Headers returns the column order every report uses.
func Headers() []string {
	return []string{
		"rank", "title", "price", "shipping", "total_cost",
		"market_value", "discount_pct", "potential_profit", "margin_pct",
		"condition", "comps", "source", "url",
	}
}

// Rows renders opportunities in their ranked order.
func Rows(opps []model.Opportunity) [][]string {
	rows := make([][]string, 0, len(opps))
	for i, o := range opps {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			EscapeCell(o.Listing.Title),
			money(o.Listing.Price),
			money(o.Listing.ShippingCost),
			money(o.Listing.TotalCost()),
			money(o.Estimate.MarketValue()),
			pct(o.DiscountPct),
			money(o.PotentialProfit),
			pct(o.ProfitMarginPct),
			EscapeCell(o.Listing.Condition),
			fmt.Sprintf("%d", o.Estimate.SampleSize),
			o.Listing.Source,
			o.Listing.URL,
		})
	}
	return rows
}

// WriteCSV writes the header row and every opportunity to w.
func WriteCSV(w io.Writer, opps []model.Opportunity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range Rows(opps) {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary appends a human-readable batch summary to w.
func WriteSummary(w io.Writer, s analysis.Summary) error {
	if s.TotalDeals == 0 {
		_, err := fmt.Fprintln(w, "No deals found above the discount threshold.")
		return err
	}
	_, err := fmt.Fprintf(w,
		"%d deals, best discount %.1f%%, total potential profit $%.2f (avg $%.2f)\n",
		s.TotalDeals, s.MaxDiscountPct, s.TotalPotentialProfit, s.AvgPotentialProfit)
	return err
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

func pct(v float64) string { return fmt.Sprintf("%.1f", v) }
