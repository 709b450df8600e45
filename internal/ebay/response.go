package ebay

// Finding API responses wrap every scalar in a one-element array; the
// structs below mirror that shape so decoding stays mechanical.

type findingItem struct {
	ItemID      []string `json:"itemId"`
	Title       []string `json:"title"`
	ViewItemURL []string `json:"viewItemURL"`
	GalleryURL  []string `json:"galleryURL"`
	Condition   []struct {
		ConditionDisplayName []string `json:"conditionDisplayName"`
	} `json:"condition"`
	SellingStatus []struct {
		CurrentPrice []struct {
			Value      []string `json:"__value__"`
			CurrencyID []string `json:"@currencyId"`
		} `json:"currentPrice"`
		ConvertedCurrentPrice []struct {
			Value      []string `json:"__value__"`
			CurrencyID []string `json:"@currencyId"`
		} `json:"convertedCurrentPrice"`
	} `json:"sellingStatus"`
	ListingInfo []struct {
		EndTime     []string `json:"endTime"`
		ListingType []string `json:"listingType"`
	} `json:"listingInfo"`
	ShippingInfo []struct {
		ShippingServiceCost []struct {
			Value []string `json:"__value__"`
		} `json:"shippingServiceCost"`
	} `json:"shippingInfo"`
}

type searchResult struct {
	Item []findingItem `json:"item"`
}

type findingResponse struct {
	FindItemsAdvancedResponse []struct {
		SearchResult []searchResult `json:"searchResult"`
	} `json:"findItemsAdvancedResponse"`
	FindCompletedItemsResponse []struct {
		SearchResult []searchResult `json:"searchResult"`
	} `json:"findCompletedItemsResponse"`
}

func (r findingResponse) results(op string) []searchResult {
	if op == opFindSold {
		if len(r.FindCompletedItemsResponse) > 0 {
			return r.FindCompletedItemsResponse[0].SearchResult
		}
		return nil
	}
	if len(r.FindItemsAdvancedResponse) > 0 {
		return r.FindItemsAdvancedResponse[0].SearchResult
	}
	return nil
}

func (r findingResponse) items(op string) []findingItem {
	results := r.results(op)
	if len(results) == 0 {
		return nil
	}
	return results[0].Item
}
