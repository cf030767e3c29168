// Package tesseract provides a local OCR engine backed by libtesseract.
// It lives in its own package so only binaries that select it need cgo and
// the tesseract headers.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/scanlens/internal/scanning"
)

// Engine implements scanning.OCREngine with gosseract
type Engine struct {
	pageSegMode gosseract.PageSegMode
}

// New creates a tesseract engine. Receipts read best as a single uniform
// block of text.
func New() *Engine {
	return &Engine{pageSegMode: gosseract.PSM_SINGLE_BLOCK}
}

// Recognize runs tesseract on the image. A client is created per call since
// gosseract clients are not safe for concurrent use.
func (e *Engine) Recognize(ctx context.Context, img scanning.Image, language string, progress func(float64)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(language); err != nil {
		return "", fmt.Errorf("setting language %q: %w", language, err)
	}
	if err := client.SetPageSegMode(e.pageSegMode); err != nil {
		return "", fmt.Errorf("setting page segmentation mode: %w", err)
	}
	pngData, err := scanning.PreparePNG(img)
	if err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}
	progress(0.3)

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return text, nil
}

// Close is a no-op; clients are closed per call
func (e *Engine) Close() error {
	return nil
}
