package extract

import (
	"strings"

	"github.com/zombor/scanlens/internal/scanning"
)

// ContentType is the semantic class of decoded content
type ContentType int

const (
	ContentText ContentType = iota
	ContentUPI
	ContentURL
	ContentProduct
)

func (c ContentType) String() string {
	switch c {
	case ContentUPI:
		return "upi"
	case ContentURL:
		return "url"
	case ContentProduct:
		return "product"
	default:
		return "text"
	}
}

const upiPrefix = "upi://pay"

// Classify decides what raw is. The first matching rule wins: UPI intent,
// then URL, then retail barcode (any linear symbology), then plain text.
func Classify(raw string, sym scanning.Symbology) ContentType {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, upiPrefix):
		return ContentUPI
	case strings.HasPrefix(lower, "http") || strings.Contains(lower, "www."):
		return ContentURL
	case sym.IsLinear():
		return ContentProduct
	}
	return ContentText
}
