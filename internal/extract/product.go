package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zombor/scanlens/internal/catalog"
	"github.com/zombor/scanlens/internal/scanning"
)

// Placeholder values for products the catalog does not know
const (
	UnknownProductName = "Product Not Found"
	UnknownField       = "Unknown"
	UnknownPrice       = "N/A"
)

// ProductExtractor resolves retail barcodes against a catalog
type ProductExtractor struct {
	catalog catalog.Catalog
	now     func() time.Time
}

// NewProductExtractor creates a ProductExtractor. A nil catalog makes every
// lookup a miss.
func NewProductExtractor(c catalog.Catalog, now func() time.Time) *ProductExtractor {
	if now == nil {
		now = time.Now
	}
	return &ProductExtractor{catalog: c, now: now}
}

// Extract looks barcode up. Misses and lookup failures produce a placeholder
// record rather than an error.
func (e *ProductExtractor) Extract(ctx context.Context, barcode string, sym scanning.Symbology) ProductInfo {
	info := ProductInfo{
		Barcode:   barcode,
		Name:      UnknownProductName,
		Brand:     UnknownField,
		Category:  UnknownField,
		Price:     UnknownPrice,
		Format:    string(sym),
		ScannedAt: e.now(),
	}
	if e.catalog == nil {
		return info
	}

	p, err := e.catalog.Lookup(ctx, barcode)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			slog.Warn("Product lookup failed", "barcode", barcode, "error", err)
		}
		return info
	}

	info.Name = orDefault(p.Name, UnknownProductName)
	info.Brand = orDefault(p.Brand, UnknownField)
	info.Category = orDefault(p.Category, UnknownField)
	info.Price = orDefault(p.Price, UnknownPrice)
	return info
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
