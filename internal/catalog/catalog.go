// Package catalog looks up retail products by barcode.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a catalog has no entry for a barcode
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry
type Product struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
	Price    string `json:"price"`
}

// Catalog looks up a product by barcode, returning ErrNotFound on a miss
type Catalog interface {
	Lookup(ctx context.Context, barcode string) (*Product, error)
}
