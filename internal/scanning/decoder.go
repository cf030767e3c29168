package scanning

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound is returned when no reader finds a code in the image.
// It is an expected outcome and drives the OCR fallback.
var ErrNotFound = errors.New("no code found")

// DecoderFault is any decoding failure other than ErrNotFound
type DecoderFault struct {
	Op  string
	Err error
}

func (e *DecoderFault) Error() string {
	return fmt.Sprintf("decoder fault: %s: %v", e.Op, e.Err)
}

func (e *DecoderFault) Unwrap() error {
	return e.Err
}

// DecodedCode is the text and symbology of a recognized code
type DecodedCode struct {
	Text      string    `json:"text"`
	Symbology Symbology `json:"symbology"`
}

// ReaderFactory builds a fresh gozxing reader. Readers keep state between
// calls, so the decoder creates one per attempt.
type ReaderFactory func() gozxing.Reader

// Decoder tries every configured reader against an image until one succeeds
type Decoder struct {
	readers   []ReaderFactory
	tryHarder bool
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithReaders replaces the default reader set
func WithReaders(readers ...ReaderFactory) DecoderOption {
	return func(d *Decoder) {
		d.readers = readers
	}
}

// WithTryHarder toggles the slower, more thorough gozxing search
func WithTryHarder(tryHarder bool) DecoderOption {
	return func(d *Decoder) {
		d.tryHarder = tryHarder
	}
}

// DefaultReaders returns the 2D readers followed by the 1D readers. UPC/EAN
// share one reader; the other linear formats each get their own. PDF417 has
// no reader in gozxing, so it is only recognized through WithReaders.
func DefaultReaders() []ReaderFactory {
	upcean := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_POSSIBLE_FORMATS: upceanFormats,
	}
	return []ReaderFactory{
		func() gozxing.Reader { return qrcode.NewQRCodeReader() },
		func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
		func() gozxing.Reader { return aztec.NewAztecReader() },
		func() gozxing.Reader {
			return withHints(oned.NewMultiFormatUPCEANReader(upcean), upcean)
		},
		func() gozxing.Reader { return oned.NewCode128Reader() },
		func() gozxing.Reader { return oned.NewCode39Reader() },
		func() gozxing.Reader { return oned.NewCode93Reader() },
		func() gozxing.Reader { return oned.NewITFReader() },
		func() gozxing.Reader { return oned.NewCodaBarReader() },
	}
}

// hintedReader adds fixed hints to every Decode call. The UPC/EAN reader
// only reports UPC-A when the decode hints, not just its constructor hints,
// allow it.
type hintedReader struct {
	gozxing.Reader
	extra map[gozxing.DecodeHintType]interface{}
}

func withHints(reader gozxing.Reader, extra map[gozxing.DecodeHintType]interface{}) gozxing.Reader {
	return &hintedReader{Reader: reader, extra: extra}
}

func (r *hintedReader) Decode(bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (*gozxing.Result, error) {
	merged := make(map[gozxing.DecodeHintType]interface{}, len(hints)+len(r.extra))
	for k, v := range hints {
		merged[k] = v
	}
	for k, v := range r.extra {
		merged[k] = v
	}
	return r.Reader.Decode(bmp, merged)
}

func (r *hintedReader) DecodeWithoutHints(bmp *gozxing.BinaryBitmap) (*gozxing.Result, error) {
	return r.Decode(bmp, nil)
}

// NewDecoder creates a Decoder with the default readers and try-harder enabled
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		readers:   DefaultReaders(),
		tryHarder: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode looks for a single code in img
func (d *Decoder) Decode(img image.Image) (*DecodedCode, error) {
	if img == nil {
		return nil, &DecoderFault{Op: "decode", Err: errors.New("nil image")}
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, &DecoderFault{Op: "decode", Err: errors.New("empty image")}
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, &DecoderFault{Op: "binarize", Err: err}
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if d.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	for _, newReader := range d.readers {
		result, err := readOnce(newReader(), bmp, hints)
		if err != nil {
			var readerErr gozxing.ReaderException
			if errors.As(err, &readerErr) {
				continue
			}
			return nil, &DecoderFault{Op: "read", Err: err}
		}
		if result == nil || result.GetText() == "" {
			continue
		}
		return &DecodedCode{
			Text:      result.GetText(),
			Symbology: symbologyFromFormat(result.GetBarcodeFormat()),
		}, nil
	}

	return nil, ErrNotFound
}

// readOnce runs a single reader. A panicking reader counts as a miss so the
// remaining readers still get their attempt.
func readOnce(reader gozxing.Reader, bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (result *gozxing.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Reader panicked", "panic", r)
			result = nil
			err = gozxing.NewNotFoundException("reader panic: %v", r)
		}
	}()
	return reader.Decode(bmp, hints)
}
