// Package testutil provides seeded factories for generating listing test
// data without fixture files.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gopforever/sportscardbot/internal/model"
)

// Factory generates deterministic test data from a seed.
type Factory struct {
	rand *rand.Rand
	now  time.Time
	seq  int
}

// NewFactory creates a factory. A zero seed falls back to the clock.
func NewFactory(seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		rand: rand.New(rand.NewSource(seed)),
		now:  time.Now(),
	}
}

// Now returns the factory's reference clock; listing ages are relative to
// it so tests can pin the analyzer to the same instant.
func (f *Factory) Now() time.Time {
	return f.now
}

// SoldListing builds a sold comparable at the given price, observed
// daysAgo days before the factory clock.
func (f *Factory) SoldListing(price float64, daysAgo int) model.ListingRecord {
	f.seq++
	return model.ListingRecord{
		ID:         fmt.Sprintf("sold-%d", f.seq),
		Title:      f.CardTitle(),
		Price:      price,
		Condition:  f.Grade(),
		URL:        fmt.Sprintf("https://test.example/sold/%d", f.seq),
		Source:     "test",
		ObservedAt: f.now.AddDate(0, 0, -daysAgo),
		Status:     model.StatusSold,
	}
}

// ActiveListing builds a live listing at the given price.
func (f *Factory) ActiveListing(price float64) model.ListingRecord {
	f.seq++
	return model.ListingRecord{
		ID:         fmt.Sprintf("active-%d", f.seq),
		Title:      f.CardTitle(),
		Price:      price,
		Condition:  f.Grade(),
		URL:        fmt.Sprintf("https://test.example/active/%d", f.seq),
		Source:     "test",
		ObservedAt: f.now,
		Status:     model.StatusActive,
	}
}

// Query builds a search query with sensible analysis defaults.
func (f *Factory) Query(keywords string) model.SearchQuery {
	return model.SearchQuery{
		Keywords:   keywords,
		MaxResults: 50,
		SoldDays:   30,
	}
}

// CardTitle generates a plausible listing title.
func (f *Factory) CardTitle() string {
	players := []string{"Michael Jordan", "Ken Griffey Jr", "Tom Brady", "Luka Doncic", "Mike Trout"}
	sets := []string{"Fleer", "Topps Chrome", "Prizm", "Upper Deck", "Bowman"}
	year := 1986 + f.rand.Intn(38)
	return fmt.Sprintf("%d %s %s #%d",
		year, sets[f.rand.Intn(len(sets))], players[f.rand.Intn(len(players))], f.rand.Intn(300)+1)
}

// Grade generates a condition label.
func (f *Factory) Grade() string {
	grades := []string{"Raw", "PSA 8", "PSA 9", "PSA 10", "BGS 9.5", "Used"}
	return grades[f.rand.Intn(len(grades))]
}
