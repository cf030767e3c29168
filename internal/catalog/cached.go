package catalog

import (
	"context"
	"errors"
	"log/slog"
)

// Store is a catalog that can also remember products
type Store interface {
	Catalog
	Save(ctx context.Context, p *Product) error
}

// Cached checks a local store before a remote catalog and remembers remote hits
type Cached struct {
	local  Store
	remote Catalog
}

// NewCached creates a Cached catalog
func NewCached(local Store, remote Catalog) *Cached {
	return &Cached{local: local, remote: remote}
}

// Lookup returns the local entry if present, otherwise the remote one
func (c *Cached) Lookup(ctx context.Context, barcode string) (*Product, error) {
	p, err := c.local.Lookup(ctx, barcode)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Warn("Local catalog lookup failed", "barcode", barcode, "error", err)
	}

	p, err = c.remote.Lookup(ctx, barcode)
	if err != nil {
		return nil, err
	}

	if err := c.local.Save(ctx, p); err != nil {
		slog.Warn("Failed to cache product", "barcode", barcode, "error", err)
	}
	return p, nil
}
