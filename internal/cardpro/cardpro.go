// Package cardpro fetches card prices and tracked sales from the
// SportsCardsPro API (PriceCharting).
package cardpro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gopforever/sportscardbot/internal/cache"
	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/normalize"
	"github.com/gopforever/sportscardbot/internal/provider"
	"github.com/gopforever/sportscardbot/internal/ratelimit"
)

const (
	defaultBaseURL = "https://www.pricecharting.com/api"
	productURLBase = "https://www.sportscardspro.com/product"

	// The products endpoint returns at most 20 matches per query.
	searchLimit = 20

	// Detail lookups are the expensive part; cap how many products per
	// search get one.
	maxDetailLookups = 3
)

// Client calls the SportsCardsPro API. Same guard order as every other
// provider: cache, then rate limiter, then retried request.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *ratelimit.Window
	retry      provider.RetryPolicy
	debug      bool
}

// New creates a client. cache may be nil to disable caching.
func New(token string, c *cache.Cache, limiter *ratelimit.Window) *Client {
	if limiter == nil {
		limiter = ratelimit.PerMinute(60)
	}
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      c,
		limiter:    limiter,
		retry:      provider.DefaultRetryPolicy(),
	}
}

// SetBaseURL overrides the API base URL (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// SetRetryPolicy overrides the default retry budget.
func (c *Client) SetRetryPolicy(p provider.RetryPolicy) { c.retry = p }

// SetDebug enables request logging.
func (c *Client) SetDebug(debug bool) { c.debug = debug }

func (c *Client) Name() string { return "cardpro" }

func (c *Client) Available() bool { return c.token != "" }

// FetchActive returns one pseudo-listing per matched product at its
// current ungraded price. SportsCardsPro tracks prices, not individual
// listings, so the product page stands in for a listing.
func (c *Client) FetchActive(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error) {
	products, err := c.searchProducts(ctx, q)
	if err != nil {
		return nil, err
	}

	max := q.MaxResults
	if max <= 0 || max > len(products) {
		max = len(products)
	}

	var records []model.ListingRecord
	for _, p := range products[:max] {
		price := centsToDollars(p["loose-price"])
		if price <= 0 {
			continue
		}
		records = append(records, model.ListingRecord{
			ID:         str(p["id"]),
			Title:      normalize.CleanTitle(str(p["product-name"]) + " - " + str(p["console-name"])),
			Price:      price,
			Condition:  "Raw",
			URL:        productURLBase + "/" + url.PathEscape(str(p["id"])),
			Source:     c.Name(),
			ObservedAt: time.Now(),
			Status:     model.StatusActive,
		})
	}
	return records, nil
}

// FetchSold returns the recent sales SportsCardsPro tracked for the top
// product matches, limited to the query's lookback window.
func (c *Client) FetchSold(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error) {
	products, err := c.searchProducts(ctx, q)
	if err != nil {
		return nil, err
	}

	days := q.SoldDays
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	lookups := maxDetailLookups
	if lookups > len(products) {
		lookups = len(products)
	}

	var records []model.ListingRecord
	for _, p := range products[:lookups] {
		id := str(p["id"])
		if id == "" {
			continue
		}
		detail, err := c.productDetail(ctx, id)
		if err != nil {
			if provider.IsCredential(err) {
				return nil, err
			}
			// One product's detail failing is not fatal to the batch
			if c.debug {
				log.Printf("cardpro: detail %s: %v", id, err)
			}
			continue
		}

		name := normalize.CleanTitle(str(detail["product-name"]) + " - " + str(detail["console-name"]))
		sales, _ := detail["sales-data"].([]interface{})
		for i, raw := range sales {
			sale, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			price := centsToDollars(sale["sale-price"])
			if price <= 0 {
				continue
			}
			observed, ok := normalize.Timestamp(str(sale["sale-date"]))
			if !ok || observed.Before(cutoff) {
				continue
			}
			grade, company := normalize.Grade(str(sale["grade"]), "")
			records = append(records, model.ListingRecord{
				ID:             fmt.Sprintf("%s-sale-%d", id, i),
				Title:          name,
				Price:          price,
				Condition:      grade,
				GradingCompany: company,
				URL:            productURLBase + "/" + url.PathEscape(id),
				Source:         c.Name(),
				ObservedAt:     observed,
				Status:         model.StatusSold,
			})
		}
	}
	return records, nil
}

// searchProducts runs the /products text search, cached per query.
func (c *Client) searchProducts(ctx context.Context, q model.SearchQuery) ([]map[string]interface{}, error) {
	if !c.Available() {
		return nil, &provider.CredentialError{Provider: c.Name(), Reason: "SportsCardsPro API token not configured"}
	}
	terms := q.Terms()
	if terms == "" {
		return nil, nil
	}

	fp := cache.Fingerprint(c.Name(), "products|"+q.Normalized(), 0)
	var products []map[string]interface{}
	if c.cache != nil {
		if found, _ := c.cache.Get(fp, &products); found {
			return products, nil
		}
	}

	u := fmt.Sprintf("%s/products?t=%s&q=%s", c.baseURL, url.QueryEscape(c.token), url.QueryEscape(terms))
	var decoded struct {
		Status   string                   `json:"status"`
		Products []map[string]interface{} `json:"products"`
	}
	if err := c.getJSON(ctx, u, &decoded); err != nil {
		return nil, err
	}
	if !strings.EqualFold(decoded.Status, "success") {
		return nil, nil
	}

	products = decoded.Products
	if len(products) > searchLimit {
		products = products[:searchLimit]
	}
	if c.cache != nil {
		_ = c.cache.Put(fp, products, cache.DefaultTTL)
	}
	return products, nil
}

// productDetail fetches one product with its tracked sales, cached per id.
func (c *Client) productDetail(ctx context.Context, id string) (map[string]interface{}, error) {
	fp := cache.Fingerprint(c.Name(), "product|"+id, 0)
	var detail map[string]interface{}
	if c.cache != nil {
		if found, _ := c.cache.Get(fp, &detail); found {
			return detail, nil
		}
	}

	u := fmt.Sprintf("%s/product?t=%s&id=%s", c.baseURL, url.QueryEscape(c.token), url.QueryEscape(id))
	if err := c.getJSON(ctx, u, &detail); err != nil {
		return nil, err
	}
	if !strings.EqualFold(str(detail["status"]), "success") {
		return nil, fmt.Errorf("product %s fetch failed", id)
	}

	if c.cache != nil {
		_ = c.cache.Put(fp, detail, cache.DefaultTTL)
	}
	return detail, nil
}

// getJSON performs one rate-limited, retried GET and decodes the body.
func (c *Client) getJSON(ctx context.Context, u string, into interface{}) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	return c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &provider.TransientError{Provider: c.Name(), Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode/100 == 2:
			if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
				return &provider.TransientError{Provider: c.Name(), Err: fmt.Errorf("decode response: %w", err)}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return &provider.TransientError{Provider: c.Name(), Err: fmt.Errorf("HTTP 429")}
		case resp.StatusCode/100 == 4:
			body, _ := io.ReadAll(resp.Body)
			return &provider.CredentialError{
				Provider: c.Name(),
				Reason:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			}
		default:
			return &provider.TransientError{Provider: c.Name(), Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
		}
	})
}

// centsToDollars converts a pennies field that may arrive as number,
// string, or null.
func centsToDollars(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t / 100
	case int:
		return float64(t) / 100
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%f", &f); err == nil {
			return f / 100
		}
	}
	return 0
}

func str(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
