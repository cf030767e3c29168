package catalog

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockCatalog is an in-memory Store
type mockCatalog struct {
	products  map[string]*Product
	lookupErr error
	saveErr   error
	lookups   int
	saves     int
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{products: make(map[string]*Product)}
}

func (m *mockCatalog) Lookup(ctx context.Context, barcode string) (*Product, error) {
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	p, ok := m.products[barcode]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) Save(ctx context.Context, p *Product) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.products[p.Barcode] = p
	return nil
}

var _ = Describe("Cached", func() {
	var (
		local  *mockCatalog
		remote *mockCatalog
		cached *Cached
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		local = newMockCatalog()
		remote = newMockCatalog()
		cached = NewCached(local, remote)
	})

	It("serves local hits without calling the remote", func() {
		local.products["1"] = &Product{Barcode: "1", Name: "Local"}

		p, err := cached.Lookup(ctx, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Local"))
		Expect(remote.lookups).To(Equal(0))
	})

	It("remembers remote hits", func() {
		remote.products["2"] = &Product{Barcode: "2", Name: "Remote"}

		_, err := cached.Lookup(ctx, "2")
		Expect(err).NotTo(HaveOccurred())
		Expect(local.products).To(HaveKey("2"))

		_, err = cached.Lookup(ctx, "2")
		Expect(err).NotTo(HaveOccurred())
		Expect(remote.lookups).To(Equal(1))
	})

	It("returns ErrNotFound when neither side knows the barcode", func() {
		_, err := cached.Lookup(ctx, "3")
		Expect(err).To(MatchError(ErrNotFound))
	})

	It("falls through to the remote when the local store fails", func() {
		local.lookupErr = errors.New("disk I/O error")
		remote.products["4"] = &Product{Barcode: "4", Name: "Remote"}

		p, err := cached.Lookup(ctx, "4")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Remote"))
	})

	It("still returns the product when caching fails", func() {
		local.saveErr = errors.New("read-only")
		remote.products["5"] = &Product{Barcode: "5", Name: "Remote"}

		p, err := cached.Lookup(ctx, "5")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Remote"))
	})
})
