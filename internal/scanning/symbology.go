package scanning

import "github.com/makiuchi-d/gozxing"

// Symbology identifies the barcode encoding a code was read from
type Symbology string

const (
	SymbologyUnknown    Symbology = ""
	SymbologyQR         Symbology = "qr_code"
	SymbologyDataMatrix Symbology = "data_matrix"
	SymbologyAztec      Symbology = "aztec"
	SymbologyPDF417     Symbology = "pdf417"
	SymbologyCode39     Symbology = "code_39"
	SymbologyCode93     Symbology = "code_93"
	SymbologyCode128    Symbology = "code_128"
	SymbologyEAN8       Symbology = "ean_8"
	SymbologyEAN13      Symbology = "ean_13"
	SymbologyUPCA       Symbology = "upc_a"
	SymbologyUPCE       Symbology = "upc_e"
	SymbologyITF        Symbology = "itf"
	SymbologyCodabar    Symbology = "codabar"
)

// IsLinear reports whether the symbology is a one-dimensional barcode
func (s Symbology) IsLinear() bool {
	switch s {
	case SymbologyCode39, SymbologyCode93, SymbologyCode128,
		SymbologyEAN8, SymbologyEAN13, SymbologyUPCA, SymbologyUPCE,
		SymbologyITF, SymbologyCodabar:
		return true
	}
	return false
}

// IsMatrix reports whether the symbology is a two-dimensional code
func (s Symbology) IsMatrix() bool {
	switch s {
	case SymbologyQR, SymbologyDataMatrix, SymbologyAztec, SymbologyPDF417:
		return true
	}
	return false
}

func symbologyFromFormat(format gozxing.BarcodeFormat) Symbology {
	switch format {
	case gozxing.BarcodeFormat_QR_CODE:
		return SymbologyQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return SymbologyDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return SymbologyAztec
	case gozxing.BarcodeFormat_PDF_417:
		return SymbologyPDF417
	case gozxing.BarcodeFormat_CODE_39:
		return SymbologyCode39
	case gozxing.BarcodeFormat_CODE_93:
		return SymbologyCode93
	case gozxing.BarcodeFormat_CODE_128:
		return SymbologyCode128
	case gozxing.BarcodeFormat_EAN_8:
		return SymbologyEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return SymbologyEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return SymbologyUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return SymbologyUPCE
	case gozxing.BarcodeFormat_ITF:
		return SymbologyITF
	case gozxing.BarcodeFormat_CODABAR:
		return SymbologyCodabar
	}
	return SymbologyUnknown
}

// upceanFormats are the formats handed to the multi-format UPC/EAN reader
var upceanFormats = []gozxing.BarcodeFormat{
	gozxing.BarcodeFormat_EAN_8,
	gozxing.BarcodeFormat_EAN_13,
	gozxing.BarcodeFormat_UPC_A,
	gozxing.BarcodeFormat_UPC_E,
}
