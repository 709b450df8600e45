// Package ebay fetches active and completed listings from the eBay
// Finding API.
package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gopforever/sportscardbot/internal/cache"
	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/normalize"
	"github.com/gopforever/sportscardbot/internal/provider"
	"github.com/gopforever/sportscardbot/internal/ratelimit"
)

const (
	defaultEndpoint = "https://svcs.ebay.com/services/search/FindingService/v1"

	opFindActive = "findItemsAdvanced"
	opFindSold   = "findCompletedItems"

	// Sports Mem, Cards & Fan Shop
	categorySportsCards = "212"

	maxPageSize = 100
)

// Client calls the eBay Finding API. Every page fetch is cache-checked,
// rate-limited, and retried on transient failure.
type Client struct {
	appID      string
	endpoint   string
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *ratelimit.Window
	retry      provider.RetryPolicy
	pageSize   int
	debug      bool
}

// New creates a Finding API client. cache may be nil to disable caching.
func New(appID string, c *cache.Cache, limiter *ratelimit.Window) *Client {
	if limiter == nil {
		limiter = ratelimit.PerMinute(50)
	}
	return &Client{
		appID:      appID,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      c,
		limiter:    limiter,
		retry:      provider.DefaultRetryPolicy(),
		pageSize:   maxPageSize,
	}
}

// SetEndpoint overrides the API endpoint (sandbox, tests).
func (c *Client) SetEndpoint(endpoint string) { c.endpoint = endpoint }

// SetRetryPolicy overrides the default retry budget.
func (c *Client) SetRetryPolicy(p provider.RetryPolicy) { c.retry = p }

// SetDebug enables request logging.
func (c *Client) SetDebug(debug bool) { c.debug = debug }

// SetPageSize lowers the per-page entry count (API maximum 100).
func (c *Client) SetPageSize(n int) {
	if n > 0 && n <= maxPageSize {
		c.pageSize = n
	}
}

func (c *Client) Name() string { return "ebay" }

func (c *Client) Available() bool { return c.appID != "" }

// FetchActive returns live listings for the query.
func (c *Client) FetchActive(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error) {
	return c.search(ctx, opFindActive, q, model.StatusActive)
}

// FetchSold returns completed sales within the query's lookback window.
func (c *Client) FetchSold(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error) {
	records, err := c.search(ctx, opFindSold, q, model.StatusSold)
	if err != nil {
		return nil, err
	}

	days := q.SoldDays
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	kept := records[:0]
	for _, rec := range records {
		// Undated sales can't prove recency; keep them out of the comps
		if !rec.ObservedAt.IsZero() && rec.ObservedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

// search pages through one Finding API operation. Pages are fetched in
// order because a short page is the only end-of-results signal.
func (c *Client) search(ctx context.Context, op string, q model.SearchQuery, status model.ListingStatus) ([]model.ListingRecord, error) {
	if !c.Available() {
		return nil, &provider.CredentialError{Provider: c.Name(), Reason: "eBay app ID not configured"}
	}

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = maxPageSize
	}
	pageSize := c.pageSize
	if pageSize > maxResults {
		pageSize = maxResults
	}

	var out []model.ListingRecord
	for page := 1; ; page++ {
		fp := cache.Fingerprint(c.Name(), op+"|"+q.Normalized(), page)

		var pg searchPage
		hit := false
		if c.cache != nil {
			hit, _ = c.cache.Get(fp, &pg)
		}

		if !hit {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			err := c.retry.Do(ctx, func() error {
				var ferr error
				pg, ferr = c.fetchPage(ctx, op, q, page, pageSize, status)
				return ferr
			})
			if err != nil {
				return nil, err
			}
			if c.cache != nil {
				_ = c.cache.Put(fp, pg, cache.DefaultTTL)
			}
		}

		out = append(out, pg.Records...)
		// End of results is judged by the raw item count: a skipped
		// unparseable item must not shorten the page
		if pg.ItemCount < pageSize || len(out) >= maxResults {
			break
		}
	}

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// searchPage is one fetched page plus the raw item count the API
// returned. Pagination decisions use ItemCount, never len(Records).
type searchPage struct {
	Records   []model.ListingRecord
	ItemCount int
}

func (c *Client) fetchPage(ctx context.Context, op string, q model.SearchQuery, page, pageSize int, status model.ListingStatus) (searchPage, error) {
	params := url.Values{}
	params.Set("OPERATION-NAME", op)
	params.Set("SERVICE-VERSION", "1.0.0")
	params.Set("SECURITY-APPNAME", c.appID)
	params.Set("RESPONSE-DATA-FORMAT", "JSON")
	params.Set("REST-PAYLOAD", "")
	params.Set("keywords", q.Terms())
	params.Set("categoryId", categorySportsCards)
	params.Set("paginationInput.entriesPerPage", strconv.Itoa(pageSize))
	params.Set("paginationInput.pageNumber", strconv.Itoa(page))

	filter := 0
	addFilter := func(name, value string) {
		params.Set(fmt.Sprintf("itemFilter(%d).name", filter), name)
		params.Set(fmt.Sprintf("itemFilter(%d).value", filter), value)
		filter++
	}
	if op == opFindSold {
		addFilter("SoldItemsOnly", "true")
	}
	if q.MinPrice > 0 {
		addFilter("MinPrice", strconv.FormatFloat(q.MinPrice, 'f', 2, 64))
	}
	if q.MaxPrice > 0 {
		addFilter("MaxPrice", strconv.FormatFloat(q.MaxPrice, 'f', 2, 64))
	}

	fullURL := c.endpoint + "?" + params.Encode()
	if c.debug {
		log.Printf("ebay: %s page %d", op, page)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return searchPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-EBAY-SOA-SERVICE-NAME", "FindingService")
	req.Header.Set("X-EBAY-SOA-OPERATION-NAME", op)
	req.Header.Set("X-EBAY-SOA-SECURITY-APPNAME", c.appID)
	req.Header.Set("X-EBAY-SOA-RESPONSE-DATA-FORMAT", "JSON")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return searchPage{}, &provider.TransientError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return searchPage{}, &provider.TransientError{Provider: c.Name(), Err: err}
	}

	switch {
	case resp.StatusCode/100 == 2:
		// fall through to decode
	case resp.StatusCode/100 == 4:
		return searchPage{}, &provider.CredentialError{
			Provider: c.Name(),
			Reason:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErrorMessage(body)),
		}
	default:
		return searchPage{}, &provider.TransientError{
			Provider: c.Name(),
			Err:      fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	var decoded findingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return searchPage{}, &provider.TransientError{Provider: c.Name(), Err: fmt.Errorf("parse response: %w", err)}
	}
	if msg := apiErrorMessage(body); msg != "" && len(decoded.results(op)) == 0 {
		return searchPage{}, &provider.CredentialError{Provider: c.Name(), Reason: msg}
	}

	items := decoded.items(op)
	pg := searchPage{ItemCount: len(items)}
	for _, item := range items {
		rec, err := c.parseItem(item, status)
		if err != nil {
			// Parse failures are record-scoped; skip and keep the batch
			if c.debug {
				log.Printf("ebay: skip item %s: %v", first(item.ItemID), err)
			}
			continue
		}
		pg.Records = append(pg.Records, rec)
	}
	return pg, nil
}

func (c *Client) parseItem(item findingItem, status model.ListingStatus) (model.ListingRecord, error) {
	priceText := ""
	if len(item.SellingStatus) > 0 {
		ss := item.SellingStatus[0]
		if len(ss.ConvertedCurrentPrice) > 0 {
			priceText = first(ss.ConvertedCurrentPrice[0].Value)
		}
		if priceText == "" && len(ss.CurrentPrice) > 0 {
			priceText = first(ss.CurrentPrice[0].Value)
		}
	}

	condition := ""
	if len(item.Condition) > 0 {
		condition = first(item.Condition[0].ConditionDisplayName)
	}

	dateText := ""
	shippingText := ""
	if len(item.ListingInfo) > 0 {
		dateText = first(item.ListingInfo[0].EndTime)
	}
	if len(item.ShippingInfo) > 0 && len(item.ShippingInfo[0].ShippingServiceCost) > 0 {
		shippingText = first(item.ShippingInfo[0].ShippingServiceCost[0].Value)
	}

	rec, err := normalize.Listing(normalize.RawListing{
		ID:           first(item.ItemID),
		Title:        first(item.Title),
		PriceText:    priceText,
		ShippingText: shippingText,
		Condition:    condition,
		DateText:     dateText,
		URL:          first(item.ViewItemURL),
		ImageURL:     first(item.GalleryURL),
		Source:       c.Name(),
		Status:       status,
	})
	if err != nil {
		return model.ListingRecord{}, err
	}
	if status == model.StatusActive && rec.ObservedAt.IsZero() {
		rec.ObservedAt = time.Now()
	}
	return rec, nil
}

func first(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}

// apiErrorMessage digs the first error message out of a Finding API error
// envelope, "" if there is none.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		ErrorMessage []struct {
			Error []struct {
				Message []string `json:"message"`
			} `json:"error"`
		} `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.ErrorMessage) > 0 &&
		len(envelope.ErrorMessage[0].Error) > 0 &&
		len(envelope.ErrorMessage[0].Error[0].Message) > 0 {
		return envelope.ErrorMessage[0].Error[0].Message[0]
	}
	return ""
}
