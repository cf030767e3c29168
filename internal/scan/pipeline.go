package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/scanlens/internal/extract"
	"github.com/zombor/scanlens/internal/payment"
	"github.com/zombor/scanlens/internal/scanning"
)

// IDGenerator generates unique IDs for scan results
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Recognizer turns an image into text; scanning.OCR implements it
type Recognizer interface {
	Recognize(ctx context.Context, img scanning.Image, progress func(float64)) (string, error)
}

// Store persists finished scans
type Store interface {
	CreateScan(ctx context.Context, kind Kind, raw string, payload extract.Payload, confidence float64) (string, error)
}

// Deps are a Pipeline's collaborators. Decoder, Receipts, Products,
// Dispatcher, IDGenerator and TimeSource get defaults when nil. OCR and Store
// are optional.
type Deps struct {
	Decoder     *scanning.Decoder
	OCR         Recognizer
	Receipts    *extract.ReceiptParser
	Products    *extract.ProductExtractor
	Store       Store
	Dispatcher  payment.Dispatcher
	IDGenerator IDGenerator
	TimeSource  TimeSource
}

// Pipeline sequences decoding, classification, extraction and the OCR
// fallback. Each call is independent; a Pipeline holds no per-scan state.
type Pipeline struct {
	decoder     *scanning.Decoder
	ocr         Recognizer
	receipts    *extract.ReceiptParser
	products    *extract.ProductExtractor
	store       Store
	dispatcher  payment.Dispatcher
	idGenerator IDGenerator
	timeSource  TimeSource

	dispatches sync.WaitGroup
}

// NewPipeline creates a Pipeline, filling in defaults for missing deps
func NewPipeline(deps Deps) *Pipeline {
	p := &Pipeline{
		decoder:     deps.Decoder,
		ocr:         deps.OCR,
		receipts:    deps.Receipts,
		products:    deps.Products,
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		idGenerator: deps.IDGenerator,
		timeSource:  deps.TimeSource,
	}
	if p.decoder == nil {
		p.decoder = scanning.NewDecoder()
	}
	if p.timeSource == nil {
		p.timeSource = &defaultTimeSource{}
	}
	if p.idGenerator == nil {
		p.idGenerator = &uuidGenerator{}
	}
	if p.receipts == nil {
		p.receipts = extract.NewReceiptParser("", extract.WithClock(p.timeSource.Now))
	}
	if p.products == nil {
		p.products = extract.NewProductExtractor(nil, p.timeSource.Now)
	}
	if p.dispatcher == nil {
		p.dispatcher = payment.LogDispatcher{}
	}
	return p
}

// RecognizeOption configures a single recognition
type RecognizeOption func(*recognizeConfig)

type recognizeConfig struct {
	onComplete func(*ScanResult)
	progress   func(float64)
}

// WithOnComplete registers a callback run with the finished result
func WithOnComplete(fn func(*ScanResult)) RecognizeOption {
	return func(c *recognizeConfig) {
		c.onComplete = fn
	}
}

// WithProgress receives OCR progress in [0, 1]
func WithProgress(fn func(float64)) RecognizeOption {
	return func(c *recognizeConfig) {
		c.progress = fn
	}
}

func newRecognizeConfig(opts []RecognizeOption) recognizeConfig {
	var cfg recognizeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Recognize runs one still image through the pipeline. It returns either a
// result or a *PipelineFailure.
func (p *Pipeline) Recognize(ctx context.Context, img scanning.Image, mode Mode, opts ...RecognizeOption) (result *ScanResult, err error) {
	defer recoverFailure(&result, &err)
	cfg := newRecognizeConfig(opts)

	decoded, err := scanning.DecodeImage(img.Data, img.ContentType)
	if err != nil {
		return nil, failure(FailureInvalidImage, err)
	}

	code, err := p.decoder.Decode(decoded)
	switch {
	case err == nil:
		result = p.fromCode(ctx, code)
	case errors.Is(err, scanning.ErrNotFound):
		if mode != ModeReceipt {
			return nil, failure(FailureNoCodeFound, ErrNoCodeFound)
		}
		result, err = p.fromReceipt(ctx, img, cfg.progress)
		if err != nil {
			return nil, err
		}
	default:
		return nil, failure(FailureDecoder, err)
	}

	p.complete(ctx, result, cfg)
	return result, nil
}

// RecognizeVideo waits for session and builds a result from its code. In
// receipt mode a session that ends without a code has its last frame OCR'd;
// that OCR keeps running even if ctx is cancelled.
func (p *Pipeline) RecognizeVideo(ctx context.Context, session *scanning.VideoSession, mode Mode, opts ...RecognizeOption) (result *ScanResult, err error) {
	defer recoverFailure(&result, &err)
	cfg := newRecognizeConfig(opts)

	code, err := session.Wait(ctx)
	switch {
	case err == nil:
		result = p.fromCode(ctx, code)
	case errors.Is(err, scanning.ErrPermissionDenied):
		return nil, failure(FailurePermissionDenied, err)
	case errors.Is(err, scanning.ErrSessionStopped):
		frame := session.LastFrame()
		if mode != ModeReceipt || frame == nil {
			return nil, failure(FailureNoCodeFound, ErrNoCodeFound)
		}
		data, encErr := scanning.EncodePNG(frame)
		if encErr != nil {
			return nil, failure(FailureInvalidImage, encErr)
		}
		ctx = context.WithoutCancel(ctx)
		result, err = p.fromReceipt(ctx, scanning.Image{Data: data, ContentType: "image/png"}, cfg.progress)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, failure(FailureCanceled, err)
	default:
		var fault *scanning.DecoderFault
		if errors.As(err, &fault) {
			return nil, failure(FailureDecoder, err)
		}
		return nil, failure(FailureCapture, err)
	}

	p.complete(ctx, result, cfg)
	return result, nil
}

// BatchOutcome is one entry of RecognizeBatch's output
type BatchOutcome struct {
	Result *ScanResult
	Err    error
}

// RecognizeBatch recognizes images concurrently, at most workers at a time
// (unbounded when workers <= 0). Outcomes are in input order.
func (p *Pipeline) RecognizeBatch(ctx context.Context, images []scanning.Image, mode Mode, workers int, opts ...RecognizeOption) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(images))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, img := range images {
		g.Go(func() error {
			result, err := p.Recognize(ctx, img, mode, opts...)
			outcomes[i] = BatchOutcome{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// WaitDispatches blocks until every payment hand-off started so far is done
func (p *Pipeline) WaitDispatches() {
	p.dispatches.Wait()
}

func (p *Pipeline) fromCode(ctx context.Context, code *scanning.DecodedCode) *ScanResult {
	result := p.newResult(code.Text, CodeConfidence)
	result.Symbology = code.Symbology

	switch extract.Classify(code.Text, code.Symbology) {
	case extract.ContentUPI:
		upi := extract.ParseUPI(code.Text)
		result.Kind = KindUPI
		result.Payload = upi
		p.dispatch(ctx, upi)
	case extract.ContentURL:
		result.Kind = codeKind(code.Symbology)
		result.Payload = extract.ParseURL(code.Text)
	case extract.ContentProduct:
		result.Kind = KindBarcode
		result.Payload = p.products.Extract(ctx, code.Text, code.Symbology)
	default:
		result.Kind = codeKind(code.Symbology)
		result.Payload = extract.ParseGeneric(code.Text)
	}
	return result
}

// codeKind is barcode for linear symbologies and qr for everything else
func codeKind(sym scanning.Symbology) Kind {
	if sym.IsLinear() {
		return KindBarcode
	}
	return KindQR
}

func (p *Pipeline) fromReceipt(ctx context.Context, img scanning.Image, progress func(float64)) (*ScanResult, error) {
	if p.ocr == nil {
		return nil, failure(FailureOCR, ErrOCRUnavailable)
	}

	text, err := p.ocr.Recognize(ctx, img, progress)
	if err != nil {
		return nil, failure(FailureOCR, err)
	}

	result := p.newResult(text, ReceiptConfidence)
	result.Kind = KindReceipt
	result.Payload = p.receipts.Parse(text)
	return result, nil
}

func (p *Pipeline) newResult(raw string, confidence float64) *ScanResult {
	return &ScanResult{
		ID:         p.idGenerator.Generate(),
		RawContent: raw,
		Confidence: confidence,
		Timestamp:  p.timeSource.Now(),
	}
}

// complete saves the result and runs the completion callback. A failed save
// is recorded on the result, which is still returned.
func (p *Pipeline) complete(ctx context.Context, result *ScanResult, cfg recognizeConfig) {
	if p.store != nil {
		id, err := p.store.CreateScan(ctx, result.Kind, result.RawContent, result.Payload, result.Confidence)
		if err != nil {
			slog.Error("Failed to save scan", "id", result.ID, "kind", result.Kind, "error", err)
			result.Error = fmt.Sprintf("saving scan: %v", err)
		} else {
			result.RecordID = id
		}
	}

	slog.Info("Scan recognized", "id", result.ID, "kind", result.Kind, "symbology", result.Symbology)

	if cfg.onComplete != nil {
		cfg.onComplete(result)
	}
}

func (p *Pipeline) dispatch(ctx context.Context, upi extract.UPIPayment) {
	ctx = context.WithoutCancel(ctx)
	p.dispatches.Add(1)
	go func() {
		defer p.dispatches.Done()
		if err := p.dispatcher.Dispatch(ctx, upi); err != nil {
			slog.Warn("Payment dispatch failed", "payee", upi.PayeeAddress, "error", err)
		}
	}()
}

func recoverFailure(result **ScanResult, err *error) {
	if r := recover(); r != nil {
		slog.Error("Recognition panicked", "panic", r)
		*result = nil
		*err = failure(FailureInternal, fmt.Errorf("panic: %v", r))
	}
}
