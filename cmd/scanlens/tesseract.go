//go:build tesseract

package main

import (
	"github.com/zombor/scanlens/internal/scanning"
	"github.com/zombor/scanlens/internal/scanning/tesseract"
)

func init() {
	newTesseractEngine = func() scanning.OCREngine { return tesseract.New() }
}
