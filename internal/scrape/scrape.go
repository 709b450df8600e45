// Package scrape extracts listings from eBay search result pages. It is
// the fallback source when no Finding API credential is configured, so
// it fails soft: a blocked or unparseable page yields an empty batch,
// never an error that would sink the other providers.
package scrape

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/gopforever/sportscardbot/internal/cache"
	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/normalize"
	"github.com/gopforever/sportscardbot/internal/provider"
)

const (
	defaultBaseURL = "https://www.ebay.com/sch/i.html"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// Sports Mem, Cards & Fan Shop
	categorySportsCards = "212"

	// Minimum spacing between page loads; scraping faster draws blocks.
	defaultSpacing = 2 * time.Second

	defaultMaxListings = 50
)

var itemIDRe = regexp.MustCompile(`/itm/(\d+)`)

// excludedKeywords are passed to the search as negative terms. The
// sports-card category is full of Funko figures, TCG singles, and
// jersey memorabilia that would poison the comps.
var excludedKeywords = []string{
	"funko", "pop", "magic", "pokemon", "yugioh", "comic", "game", "jersey",
}

// Scraper pulls listings out of eBay search result HTML.
type Scraper struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	cache       *cache.Cache
	maxListings int
	debug       bool
}

// New creates a scraper. cache may be nil to disable caching.
func New(c *cache.Cache) *Scraper {
	return &Scraper{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(defaultSpacing), 1),
		cache:       c,
		maxListings: defaultMaxListings,
	}
}

// SetBaseURL overrides the search URL (tests).
func (s *Scraper) SetBaseURL(u string) { s.baseURL = u }

// SetSpacing overrides the minimum delay between page loads.
func (s *Scraper) SetSpacing(d time.Duration) {
	s.limiter = rate.NewLimiter(rate.Every(d), 1)
}

// SetMaxListings caps how many listings one fetch returns.
func (s *Scraper) SetMaxListings(n int) {
	if n > 0 {
		s.maxListings = n
	}
}

// SetDebug enables request logging.
func (s *Scraper) SetDebug(debug bool) { s.debug = debug }

func (s *Scraper) Name() string { return "ebay-scrape" }

// Available is always true: scraping needs no credential.
func (s *Scraper) Available() bool { return true }

// FetchActive scrapes live Buy It Now listings for the query.
func (s *Scraper) FetchActive(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error) {
	return s.fetch(ctx, q, model.StatusActive)
}

// FetchSold scrapes completed sales, keeping only dated sales inside the
// query's lookback window.
func (s *Scraper) FetchSold(ctx context.Context, q model.SearchQuery) ([]model.ListingRecord, error) {
	records, err := s.fetch(ctx, q, model.StatusSold)
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
		if !rec.ObservedAt.IsZero() && rec.ObservedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (s *Scraper) fetch(ctx context.Context, q model.SearchQuery, status model.ListingStatus) ([]model.ListingRecord, error) {
	terms := q.Terms()
	if terms == "" {
		return nil, nil
	}

	fp := cache.Fingerprint(s.Name(), string(status)+"|"+q.Normalized(), 0)
	var records []model.ListingRecord
	if s.cache != nil {
		if hit, _ := s.cache.Get(fp, &records); hit {
			return records, nil
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := s.get(ctx, s.searchURL(q, status))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Soft failure: a block page or outage means no scraped data,
		// not a dead pipeline
		log.Printf("scrape: %s: %v", terms, err)
		return nil, nil
	}

	records = s.parse(body, status)

	max := q.MaxResults
	if max <= 0 || max > s.maxListings {
		max = s.maxListings
	}
	if len(records) > max {
		records = records[:max]
	}

	if s.cache != nil {
		_ = s.cache.Put(fp, records, cache.DefaultTTL)
	}
	return records, nil
}

// searchURL builds the result page URL with the query's filters applied.
func (s *Scraper) searchURL(q model.SearchQuery, status model.ListingStatus) string {
	params := url.Values{}
	params.Set("_nkw", q.Terms())
	params.Set("_ex_kw", strings.Join(excludedKeywords, " "))
	params.Set("_sacat", categorySportsCards)
	params.Set("_ipg", "240")
	if status == model.StatusSold {
		params.Set("LH_Sold", "1")
		params.Set("LH_Complete", "1")
	} else {
		// Auctions have no firm price to compare against
		params.Set("LH_BIN", "1")
		params.Set("_sop", "15") // price + shipping, lowest first
	}
	if q.MinPrice > 0 {
		params.Set("_udlo", strconv.FormatFloat(q.MinPrice, 'f', 2, 64))
	}
	if q.MaxPrice > 0 {
		params.Set("_udhi", strconv.FormatFloat(q.MaxPrice, 'f', 2, 64))
	}
	return s.baseURL + "?" + params.Encode()
}

func (s *Scraper) get(ctx context.Context, fullURL string) (io.Reader, error) {
	if s.debug {
		log.Printf("scrape: GET %s", fullURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.setBrowserHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	reader, err := s.getReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return strings.NewReader(string(body)), nil
}

func (s *Scraper) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// getReader unwraps the response body per its Content-Encoding.
func (s *Scraper) getReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// parse walks the result tiles. Placeholder tiles and listings without a
// parseable price are skipped; everything else becomes a record.
func (s *Scraper) parse(body io.Reader, status model.ListingStatus) []model.ListingRecord {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		log.Printf("scrape: parse page: %v", err)
		return nil
	}

	var records []model.ListingRecord
	doc.Find("li.s-item, div.s-item").Each(func(i int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".s-item__title").Text())
		if title == "" || strings.EqualFold(title, "Shop on eBay") {
			return
		}

		link, _ := sel.Find("a.s-item__link").Attr("href")
		image, _ := sel.Find(".s-item__image-img").Attr("src")

		dateText := ""
		if status == model.StatusSold {
			dateText = sel.Find(".s-item__caption--signal.POSITIVE, .s-item__title--tagblock .POSITIVE").First().Text()
		}

		rec, err := normalize.Listing(normalize.RawListing{
			ID:           itemID(link),
			Title:        title,
			PriceText:    sel.Find(".s-item__price").First().Text(),
			ShippingText: sel.Find(".s-item__shipping, .s-item__logisticsCost").First().Text(),
			Condition:    sel.Find(".s-item__subtitle .SECONDARY_INFO").First().Text(),
			URL:          link,
			ImageURL:     image,
			Source:       s.Name(),
			Status:       status,
		})
		if err != nil {
			if s.debug {
				log.Printf("scrape: skip %q: %v", title, err)
			}
			return
		}

		if sold, ok := soldDate(dateText); ok {
			rec.ObservedAt = sold
		} else if status == model.StatusActive {
			rec.ObservedAt = time.Now()
		}
		records = append(records, rec)
	})
	return records
}

// itemID pulls the numeric listing ID out of a view-item URL, falling
// back to the URL itself so dedupe still has a stable key.
func itemID(link string) string {
	if m := itemIDRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return link
}

// soldDate parses the "Sold  Oct 12, 2025" caption from result tiles.
func soldDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Sold"))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"Jan 2, 2006", "Jan 02, 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var _ provider.Source = (*Scraper)(nil)
