package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ocrPrompt is the shared transcription prompt for the LLM-backed engines
const ocrPrompt = `You are an OCR engine. Transcribe every piece of text visible in this image exactly as printed.

Rules:
- Keep the original line structure: one printed line per output line, top to bottom
- Keep currency symbols, punctuation, dates and numbers exactly as printed
- Do not summarize, translate, correct or reorder anything
- Do not add commentary, headings, or markdown
- If there is no readable text, return an empty response`

// OCREngine turns an image into text. progress receives values in [0, 1].
type OCREngine interface {
	Recognize(ctx context.Context, img Image, language string, progress func(float64)) (string, error)
	// Close releases the engine's resources
	Close() error
}

// OCRFailure is fatal for the current recognition attempt
type OCRFailure struct {
	Engine string
	Err    error
}

func (e *OCRFailure) Error() string {
	return fmt.Sprintf("ocr failure (%s): %v", e.Engine, e.Err)
}

func (e *OCRFailure) Unwrap() error {
	return e.Err
}

// ErrNoText is wrapped in an OCRFailure when the engine recognized nothing
var ErrNoText = errors.New("no text recognized")

// OCR wraps an engine with the language setting and progress bookkeeping
type OCR struct {
	engine   OCREngine
	name     string
	language string
}

// DefaultLanguage is the tesseract-style code used when none is configured
const DefaultLanguage = "eng"

// NewOCR creates an OCR adapter. language defaults to DefaultLanguage.
func NewOCR(engine OCREngine, name, language string) *OCR {
	if language == "" {
		language = DefaultLanguage
	}
	return &OCR{
		engine:   engine,
		name:     name,
		language: language,
	}
}

// Recognize runs the engine and returns its non-empty text
func (o *OCR) Recognize(ctx context.Context, img Image, progress func(float64)) (string, error) {
	report := newProgressReporter(progress)
	report(0)

	text, err := o.engine.Recognize(ctx, img, o.language, report)
	if err != nil {
		return "", &OCRFailure{Engine: o.name, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &OCRFailure{Engine: o.name, Err: ErrNoText}
	}

	report(1)
	return text, nil
}

// Close closes the underlying engine
func (o *OCR) Close() error {
	return o.engine.Close()
}

// newProgressReporter clamps values to [0, 1] and drops anything that would
// move progress backwards. A nil sink yields a no-op reporter.
func newProgressReporter(sink func(float64)) func(float64) {
	if sink == nil {
		return func(float64) {}
	}
	var (
		mu   sync.Mutex
		last = -1.0
	)
	return func(p float64) {
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		mu.Lock()
		if p <= last {
			mu.Unlock()
			return
		}
		last = p
		mu.Unlock()
		sink(p)
	}
}

// cleanTranscript strips markdown fences the LLM engines like to add
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```plaintext")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
