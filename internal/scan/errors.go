package scan

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a recognition produced no result
type FailureKind string

const (
	FailureNoCodeFound      FailureKind = "no_code_found"
	FailureInvalidImage     FailureKind = "invalid_image"
	FailureDecoder          FailureKind = "decoder"
	FailureOCR              FailureKind = "ocr"
	FailurePermissionDenied FailureKind = "permission_denied"
	FailureCapture          FailureKind = "capture"
	FailureCanceled         FailureKind = "canceled"
	FailureInternal         FailureKind = "internal"
)

// ErrNoCodeFound is the cause of a FailureNoCodeFound
var ErrNoCodeFound = errors.New("no code found")

// ErrOCRUnavailable is returned in receipt mode when no OCR engine is configured
var ErrOCRUnavailable = errors.New("no OCR engine configured")

// PipelineFailure is the only error Pipeline recognition returns
type PipelineFailure struct {
	Kind FailureKind
	Err  error
}

func (e *PipelineFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineFailure) Unwrap() error {
	return e.Err
}

func failure(kind FailureKind, err error) *PipelineFailure {
	return &PipelineFailure{Kind: kind, Err: err}
}

// FailureKindOf returns the kind of a PipelineFailure in err's chain, or
// FailureInternal
func FailureKindOf(err error) FailureKind {
	var pf *PipelineFailure
	if errors.As(err, &pf) {
		return pf.Kind
	}
	return FailureInternal
}
