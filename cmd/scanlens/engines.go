package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zombor/scanlens/internal/scanning"
)

// errTesseractUnavailable is returned for --ocr tesseract in binaries built
// without the tesseract tag
var errTesseractUnavailable = errors.New("tesseract OCR is not compiled in; rebuild with -tags tesseract")

// newTesseractEngine is set by tesseract.go when built with -tags tesseract,
// which needs cgo and the tesseract/leptonica headers
var newTesseractEngine func() scanning.OCREngine

type ocrConfig struct {
	Type        string
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string
}

// newOCREngine builds the configured engine. "none" yields a nil engine.
func newOCREngine(cfg ocrConfig) (scanning.OCREngine, error) {
	switch cfg.Type {
	case "gemini":
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini OCR...", "model", cfg.GeminiModel)
		engine, err := scanning.NewGemini(apiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "ollama":
		slog.Info("Initializing Ollama OCR...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		engine, err := scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "tesseract":
		if newTesseractEngine == nil {
			return nil, errTesseractUnavailable
		}
		slog.Info("Initializing Tesseract OCR...")
		return newTesseractEngine(), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("invalid OCR engine %q: valid are gemini, ollama, tesseract or none", cfg.Type)
}
