package scan

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Service", func() {
	var (
		db      *mockDB
		archive *mockArchive
		ocr     *mockOCR
		history *History
		service *Service
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMockDB()
		archive = newMockArchive()
		ocr = &mockOCR{text: receiptText}
		history = NewHistory(10)
	})

	JustBeforeEach(func() {
		pipeline := NewPipeline(Deps{
			OCR:         ocr,
			Store:       db,
			Dispatcher:  &mockDispatcher{},
			IDGenerator: &mockIDGenerator{},
			TimeSource:  &mockTimeSource{now: time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)},
		})
		service = NewService(pipeline, db, archive, history, 2)
	})

	Describe("Scan", func() {
		It("records the result in history and archives the upload", func() {
			result, err := service.Scan(ctx, Upload{Filename: "IMG 0001.png", Image: qrUpload("hello")}, ModeCode, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(service.History()).To(ConsistOf(result))
			Expect(archive.files).To(HaveKey("scan-1_IMG 0001.png"))
			Expect(db.images[result.RecordID]).To(Equal(ImageRef{Path: "scan-1_IMG 0001.png", ContentType: "image/png"}))
		})

		It("does not archive failed recognitions", func() {
			_, err := service.Scan(ctx, Upload{Filename: "blank.png", Image: blankUpload()}, ModeCode, nil)
			Expect(FailureKindOf(err)).To(Equal(FailureNoCodeFound))
			Expect(archive.count()).To(Equal(0))
			Expect(service.History()).To(BeEmpty())
		})

		It("keeps the result when archiving fails", func() {
			archive.saveErr = errors.New("quota exceeded")
			result, err := service.Scan(ctx, Upload{Filename: "a.png", Image: qrUpload("hello")}, ModeCode, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RecordID).NotTo(BeEmpty())
			Expect(db.images).To(BeEmpty())
		})

		It("removes the upload when its reference cannot be saved", func() {
			db.imageErr = errors.New("bucket missing")
			_, err := service.Scan(ctx, Upload{Filename: "a.png", Image: qrUpload("hello")}, ModeCode, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(archive.count()).To(Equal(0))
		})

		It("forwards OCR progress", func() {
			var progress []float64
			_, err := service.Scan(ctx, Upload{Filename: "r.png", Image: blankUpload()}, ModeReceipt, func(p float64) {
				progress = append(progress, p)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(progress).To(Equal([]float64{0.5, 1}))
		})
	})

	Describe("ScanBatch", func() {
		It("returns one outcome per upload in order", func() {
			uploads := []Upload{
				{Filename: "a.png", Image: qrUpload("a")},
				{Filename: "b.png", Image: blankUpload()},
				{Filename: "c.png", Image: qrUpload("c")},
			}
			outcomes := service.ScanBatch(ctx, uploads, ModeCode)
			Expect(outcomes).To(HaveLen(3))
			Expect(outcomes[0].Result.RawContent).To(Equal("a"))
			Expect(FailureKindOf(outcomes[1].Err)).To(Equal(FailureNoCodeFound))
			Expect(outcomes[2].Result.RawContent).To(Equal("c"))
			Expect(service.History()).To(HaveLen(2))
		})
	})

	Describe("stored scans", func() {
		var result *ScanResult

		JustBeforeEach(func() {
			var err error
			result, err = service.Scan(ctx, Upload{Filename: "a.png", Image: qrUpload("upi://pay?pa=a@b")}, ModeCode, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("gets and lists them", func() {
			record, err := service.GetScan(result.RecordID)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Kind).To(Equal(KindUPI))

			records, err := service.ListScans("upi")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})

		It("returns the archived image", func() {
			data, contentType, err := service.GetScanImage(ctx, result.RecordID)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentType).To(Equal("image/png"))
			Expect(data).NotTo(BeEmpty())
		})

		It("deletes the record and its upload", func() {
			Expect(service.DeleteScan(ctx, result.RecordID)).To(Succeed())
			Expect(archive.count()).To(Equal(0))
			_, err := service.GetScan(result.RecordID)
			Expect(errors.Is(err, ErrScanNotFound)).To(BeTrue())
		})

		It("deletes the record even when the upload cannot be removed", func() {
			archive.deleteErr = errors.New("permission denied")
			Expect(service.DeleteScan(ctx, result.RecordID)).To(Succeed())
			_, err := service.GetScan(result.RecordID)
			Expect(err).To(HaveOccurred())
		})

		It("wraps lookup failures", func() {
			db.listErr = errors.New("boom")
			_, err := service.ListScans("")
			Expect(err).To(MatchError(ContainSubstring("listing scans")))
		})
	})

	It("exports history as CSV", func() {
		_, err := service.Scan(ctx, Upload{Filename: "a.png", Image: qrUpload("hello")}, ModeCode, nil)
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(service.ExportHistory(&buf)).To(Succeed())
		Expect(strings.Count(buf.String(), "\n")).To(Equal(2))
		Expect(buf.String()).To(ContainSubstring("hello"))
	})

	When("no archive is configured", func() {
		JustBeforeEach(func() {
			service = NewService(NewPipeline(Deps{Store: db}), db, nil, nil, 0)
		})

		It("still scans", func() {
			result, err := service.Scan(ctx, Upload{Filename: "a.png", Image: qrUpload("x")}, ModeCode, nil)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = service.GetScanImage(ctx, result.RecordID)
			Expect(err).To(HaveOccurred())
		})
	})

})
