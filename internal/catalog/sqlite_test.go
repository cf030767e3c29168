package catalog

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SQLite", func() {
	var (
		store *SQLite
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = OpenSQLite(filepath.Join(GinkgoT().TempDir(), "catalog.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("returns ErrNotFound for unknown barcodes", func() {
		_, err := store.Lookup(ctx, "0000000000000")
		Expect(err).To(MatchError(ErrNotFound))
	})

	It("saves and looks up products", func() {
		Expect(store.Save(ctx, &Product{Barcode: "4006381333931", Name: "Textmarker", Brand: "Stabilo", Category: "Stationery", Price: "2.49"})).To(Succeed())

		p, err := store.Lookup(ctx, "4006381333931")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Textmarker"))
		Expect(p.Brand).To(Equal("Stabilo"))
		Expect(p.Price).To(Equal("2.49"))
	})

	It("replaces existing products", func() {
		Expect(store.Save(ctx, &Product{Barcode: "1", Name: "Old"})).To(Succeed())
		Expect(store.Save(ctx, &Product{Barcode: "1", Name: "New"})).To(Succeed())

		p, err := store.Lookup(ctx, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("New"))
	})
})
