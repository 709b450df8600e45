package ebay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gopforever/sportscardbot/internal/cache"
	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/provider"
	"github.com/gopforever/sportscardbot/internal/ratelimit"
)

type itemSpec struct {
	id, title, price, condition, endTime string
}

func findingJSON(op string, items []itemSpec) string {
	respKey := "findItemsAdvancedResponse"
	if op == opFindSold {
		respKey = "findCompletedItemsResponse"
	}

	var rendered []string
	for _, it := range items {
		rendered = append(rendered, fmt.Sprintf(`{
			"itemId": [%q],
			"title": [%q],
			"viewItemURL": ["https://www.ebay.com/itm/%s"],
			"galleryURL": ["https://i.ebayimg.com/%s.jpg"],
			"condition": [{"conditionDisplayName": [%q]}],
			"sellingStatus": [{"currentPrice": [{"__value__": [%q], "@currencyId": ["USD"]}]}],
			"listingInfo": [{"endTime": [%q]}]
		}`, it.id, it.title, it.id, it.id, it.condition, it.price, it.endTime))
	}

	return fmt.Sprintf(`{%q: [{"searchResult": [{"item": [%s]}]}]}`,
		respKey, strings.Join(rendered, ","))
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, _ := cache.New("")
	client := New("test-app-id", c, ratelimit.PerMinute(1000))
	client.SetEndpoint(srv.URL)
	client.SetRetryPolicy(provider.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond})
	return client, srv
}

func TestFetchActive_ParsesListings(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("OPERATION-NAME"); got != opFindActive {
			t.Errorf("operation = %q", got)
		}
		fmt.Fprint(w, findingJSON(opFindActive, []itemSpec{
			{"101", "1986 Fleer Jordan PSA 8", "450.00", "PSA 8", ""},
			{"102", "1986 Fleer Jordan raw", "120.00", "Used", ""},
		}))
	})

	records, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "jordan fleer", MaxResults: 10})
	if err != nil {
		t.Fatalf("fetch active: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	rec := records[0]
	if rec.Price != 450 || rec.Status != model.StatusActive || rec.Source != "ebay" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Condition != "PSA 8" || rec.GradingCompany != "PSA" {
		t.Errorf("grade not normalized: %q / %q", rec.Condition, rec.GradingCompany)
	}
	if rec.ObservedAt.IsZero() {
		t.Error("active record should carry an observed timestamp")
	}
}

func TestFetchActive_SkipsMalformedItems(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, findingJSON(opFindActive, []itemSpec{
			{"101", "good listing", "45.00", "Used", ""},
			{"102", "no price listing", "", "Used", ""},
			{"103", "another good one", "55.00", "Used", ""},
		}))
	})

	records, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "q", MaxResults: 10})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected the unpriced item to be skipped, got %d records", len(records))
	}
}

func TestFetchSold_FiltersLookbackWindow(t *testing.T) {
	recent := time.Now().AddDate(0, 0, -5).UTC().Format(time.RFC3339)
	stale := time.Now().AddDate(0, 0, -60).UTC().Format(time.RFC3339)

	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("itemFilter(0).name") != "SoldItemsOnly" {
			t.Errorf("expected SoldItemsOnly filter, got %q", q.Get("itemFilter(0).name"))
		}
		fmt.Fprint(w, findingJSON(opFindSold, []itemSpec{
			{"201", "sold recently", "90.00", "Used", recent},
			{"202", "sold long ago", "80.00", "Used", stale},
			{"203", "undated sale", "85.00", "Used", ""},
		}))
	})

	records, err := client.FetchSold(context.Background(), model.SearchQuery{Keywords: "q", MaxResults: 10, SoldDays: 30})
	if err != nil {
		t.Fatalf("fetch sold: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected only the recent sale, got %d", len(records))
	}
	if records[0].ID != "201" || records[0].Status != model.StatusSold {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestSearch_Pagination(t *testing.T) {
	pages := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		page, _ := strconv.Atoi(r.URL.Query().Get("paginationInput.pageNumber"))
		count := 10 // full page
		if page == 3 {
			count = 3 // short page ends pagination
		}
		var items []itemSpec
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("%d-%d", page, i)
			items = append(items, itemSpec{id, "card " + id, "10.00", "Used", ""})
		}
		fmt.Fprint(w, findingJSON(opFindActive, items))
	})
	client.SetPageSize(10)

	records, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "q", MaxResults: 50})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if pages != 3 {
		t.Errorf("expected 3 page fetches, got %d", pages)
	}
	if len(records) != 23 {
		t.Errorf("expected 23 records, got %d", len(records))
	}
}

func TestSearch_SkippedItemDoesNotEndPagination(t *testing.T) {
	pages := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		page, _ := strconv.Atoi(r.URL.Query().Get("paginationInput.pageNumber"))
		var items []itemSpec
		if page == 1 {
			// Full 10-item page, but one item has no parseable price
			for i := 0; i < 10; i++ {
				price := "10.00"
				if i == 4 {
					price = ""
				}
				id := fmt.Sprintf("1-%d", i)
				items = append(items, itemSpec{id, "card " + id, price, "Used", ""})
			}
		} else {
			for i := 0; i < 3; i++ {
				id := fmt.Sprintf("2-%d", i)
				items = append(items, itemSpec{id, "card " + id, "10.00", "Used", ""})
			}
		}
		fmt.Fprint(w, findingJSON(opFindActive, items))
	})
	client.SetPageSize(10)

	records, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "q", MaxResults: 50})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if pages != 2 {
		t.Errorf("a skipped item must not end pagination: %d pages fetched, want 2", pages)
	}
	if len(records) != 12 {
		t.Errorf("expected 12 records (9 + 3), got %d", len(records))
	}
}

func TestSearch_CacheAvoidsSecondRequest(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, findingJSON(opFindActive, []itemSpec{
			{"101", "cached card", "45.00", "Used", ""},
		}))
	})

	q := model.SearchQuery{Keywords: "q", MaxResults: 10}
	if _, err := client.FetchActive(context.Background(), q); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := client.FetchActive(context.Background(), q); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if requests != 1 {
		t.Errorf("expected 1 upstream request, got %d", requests)
	}
}

func TestSearch_CredentialErrorNotRetried(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errorMessage": [{"error": [{"message": ["Invalid appID"]}]}]}`)
	})

	_, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "q"})
	if !provider.IsCredential(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if requests != 1 {
		t.Errorf("4xx must not be retried, got %d requests", requests)
	}
}

func TestSearch_TransientRetriedThenSurfaced(t *testing.T) {
	requests := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsTransient(err) {
		t.Errorf("expected transient classification, got %v", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 attempts, got %d", requests)
	}
}

func TestMissingAppID_FailsBeforeNetwork(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	client := New("", nil, nil)
	client.SetEndpoint(srv.URL)

	_, err := client.FetchActive(context.Background(), model.SearchQuery{Keywords: "q"})
	if !provider.IsCredential(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if requests != 0 {
		t.Errorf("no network call should be made without a credential, got %d", requests)
	}
}

// Ensure Client satisfies the provider contract
var _ provider.Source = (*Client)(nil)
