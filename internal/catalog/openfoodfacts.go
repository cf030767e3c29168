package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultOpenFoodFactsURL is the public Open Food Facts API
const DefaultOpenFoodFactsURL = "https://world.openfoodfacts.org"

// OpenFoodFacts looks products up in the Open Food Facts database
type OpenFoodFacts struct {
	baseURL string
	client  *http.Client
}

// NewOpenFoodFacts creates a client for baseURL (DefaultOpenFoodFactsURL when empty)
func NewOpenFoodFacts(baseURL string) *OpenFoodFacts {
	if baseURL == "" {
		baseURL = DefaultOpenFoodFactsURL
	}
	return &OpenFoodFacts{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type offResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
		Categories  string `json:"categories"`
	} `json:"product"`
}

// Lookup fetches /api/v0/product/{barcode}.json. Status 0 means unknown.
func (o *OpenFoodFacts) Lookup(ctx context.Context, barcode string) (*Product, error) {
	endpoint := fmt.Sprintf("%s/api/v0/product/%s.json", o.baseURL, url.PathEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling open food facts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("open food facts error (status %d): %s", resp.StatusCode, string(body))
	}

	var off offResponse
	if err := json.NewDecoder(resp.Body).Decode(&off); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if off.Status != 1 || off.Product.ProductName == "" {
		return nil, ErrNotFound
	}

	return &Product{
		Barcode:  barcode,
		Name:     off.Product.ProductName,
		Brand:    firstListItem(off.Product.Brands),
		Category: firstListItem(off.Product.Categories),
	}, nil
}

// firstListItem takes the first entry of a comma separated OFF field
func firstListItem(s string) string {
	first, _, _ := strings.Cut(s, ",")
	return strings.TrimSpace(first)
}
