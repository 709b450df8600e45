package provider

import (
	"context"

	"github.com/gopforever/sportscardbot/internal/model"
)

// Source is the capability contract every listing provider implements:
// the Finding API client, the SportsCardsPro client, and the web scraper
// all look the same to the pipeline.
type Source interface {
	// Name identifies the provider in cache keys, rate limits, and errors.
	Name() string

	// Available returns true if the provider is configured and usable.
	Available() bool

	// FetchActive returns live listings matching the query.
	FetchActive(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error)

	// FetchSold returns sold comparables matching the query, limited to
	// the query's lookback window.
	FetchSold(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error)
}
