// Package normalize converts provider-specific payload fields into the
// canonical listing record. Provider payloads are not contracts: every
// function here is total, and only a missing price drops a record.
package normalize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gopforever/sportscardbot/internal/model"
)

// ErrNoPrice marks a raw listing whose price could not be parsed. A record
// without a price cannot participate in valuation, so it is dropped.
var ErrNoPrice = errors.New("listing has no parseable price")

// Unknown is the explicit placeholder for optional fields that failed to
// parse.
const Unknown = "Unknown"

var (
	priceRe  = regexp.MustCompile(`([\d,]+\.?\d*)`)
	gradeRe  = regexp.MustCompile(`(?i)\b(PSA|BGS|CGC|SGC)\s*-?\s*(10|[1-9](?:\.5)?)\b`)
	yearRe   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	spaceSeq = regexp.MustCompile(`\s+`)
)

// RawListing is the tagged union boundary: each provider fills this from
// its own payload shape (API JSON fields or scraped HTML text) and nothing
// past this point branches on where a record came from.
type RawListing struct {
	ID           string
	Title        string
	PriceText    string
	ShippingText string
	Condition    string
	DateText     string
	URL          string
	ImageURL     string
	Source       string
	Status       model.ListingStatus
}

// Listing converts a raw listing into a canonical record. Optional fields
// that fail to parse become explicit unknowns; an unparseable price
// returns ErrNoPrice.
func Listing(raw RawListing) (model.ListingRecord, error) {
	price, ok := Price(raw.PriceText)
	if !ok || price <= 0 {
		return model.ListingRecord{}, ErrNoPrice
	}

	condition, company := Grade(raw.Condition, raw.Title)

	observed, ok := Timestamp(raw.DateText)
	if !ok {
		observed = time.Time{}
	}

	return model.ListingRecord{
		ID:             raw.ID,
		Title:          CleanTitle(raw.Title),
		Price:          price,
		ShippingCost:   Shipping(raw.ShippingText),
		Condition:      condition,
		GradingCompany: company,
		ImageURL:       raw.ImageURL,
		URL:            raw.URL,
		Source:         raw.Source,
		ObservedAt:     observed,
		Status:         raw.Status,
	}, nil
}

// Price parses price text like "$1,234.56". Ranges ("$100.00 to $200.00")
// take the low bound.
func Price(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i := strings.Index(strings.ToLower(s), " to "); i >= 0 {
		s = s[:i]
	}
	m := priceRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// Shipping parses shipping text like "+$5.00 shipping". Free or
// unparseable shipping is 0.
func Shipping(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(strings.ToLower(s), "free") {
		return 0
	}
	v, ok := Price(s)
	if !ok {
		return 0
	}
	return v
}

// Grade normalizes a condition label and extracts the grading company.
// "PSA10", "psa 10", and "PSA-10" all become ("PSA 10", "PSA"). The title
// is consulted when the condition field carries no grade. Ungraded cards
// keep their condition text; a blank condition becomes Unknown.
func Grade(condition, title string) (label, company string) {
	for _, s := range []string{condition, title} {
		if m := gradeRe.FindStringSubmatch(s); m != nil {
			company = strings.ToUpper(m[1])
			return company + " " + m[2], company
		}
	}
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return Unknown, ""
	}
	return condition, ""
}

// Timestamp parses provider timestamps: RFC3339 with or without
// sub-second precision, or a bare date.
func Timestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Year extracts a 4-digit card year from free text, "" if absent.
func Year(s string) string {
	return yearRe.FindString(s)
}

// CleanTitle collapses whitespace runs left over from HTML extraction.
func CleanTitle(s string) string {
	return strings.TrimSpace(spaceSeq.ReplaceAllString(s, " "))
}
