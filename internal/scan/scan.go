// Package scan runs the recognition pipeline and serves its results.
package scan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/scanlens/internal/extract"
	"github.com/zombor/scanlens/internal/scanning"
)

// Kind is what a scan result was recognized as
type Kind string

const (
	KindUPI     Kind = "upi"
	KindQR      Kind = "qr"
	KindBarcode Kind = "barcode"
	KindReceipt Kind = "receipt"
)

// Mode is the caller's intent. Only ModeReceipt falls back to OCR.
type Mode string

const (
	ModeCode    Mode = "code"
	ModeReceipt Mode = "receipt"
)

// ParseMode accepts "code", "receipt" or empty (code)
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCode:
		return ModeCode, nil
	case ModeReceipt:
		return ModeReceipt, nil
	}
	return "", fmt.Errorf("unknown scan mode %q", s)
}

// Fixed confidences for the two recognition paths
const (
	CodeConfidence    = 0.8
	ReceiptConfidence = 0.7
)

// ScanResult is the outcome of one successful recognition
type ScanResult struct {
	ID         string
	RecordID   string
	Kind       Kind
	RawContent string
	Payload    extract.Payload
	Confidence float64
	Timestamp  time.Time
	Symbology  scanning.Symbology
	// Error carries a non-fatal problem, such as a failed save
	Error string
}

// KindAccepts reports whether payload is a valid payload for kind
func KindAccepts(kind Kind, payload extract.Payload) bool {
	if payload == nil {
		return false
	}
	switch kind {
	case KindUPI:
		return payload.PayloadType() == extract.PayloadUPIPayment
	case KindQR:
		t := payload.PayloadType()
		return t == extract.PayloadURL || t == extract.PayloadText
	case KindBarcode:
		t := payload.PayloadType()
		return t == extract.PayloadProduct || t == extract.PayloadURL || t == extract.PayloadText
	case KindReceipt:
		return payload.PayloadType() == extract.PayloadReceipt
	}
	return false
}

// Category is the storage category for kind. QR codes and barcodes share "other".
func Category(kind Kind) string {
	switch kind {
	case KindUPI:
		return "upi"
	case KindReceipt:
		return "receipt"
	}
	return "other"
}

type scanResultJSON struct {
	ID         string             `json:"id"`
	RecordID   string             `json:"record_id,omitempty"`
	Kind       Kind               `json:"kind"`
	RawContent string             `json:"raw_content"`
	Payload    json.RawMessage    `json:"payload"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
	Symbology  scanning.Symbology `json:"symbology,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (r ScanResult) MarshalJSON() ([]byte, error) {
	payload, err := extract.MarshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scanResultJSON{
		ID:         r.ID,
		RecordID:   r.RecordID,
		Kind:       r.Kind,
		RawContent: r.RawContent,
		Payload:    payload,
		Confidence: r.Confidence,
		Timestamp:  r.Timestamp,
		Symbology:  r.Symbology,
		Error:      r.Error,
	})
}

func (r *ScanResult) UnmarshalJSON(data []byte) error {
	var v scanResultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	payload, err := extract.UnmarshalPayload(v.Payload)
	if err != nil {
		return err
	}
	*r = ScanResult{
		ID:         v.ID,
		RecordID:   v.RecordID,
		Kind:       v.Kind,
		RawContent: v.RawContent,
		Payload:    payload,
		Confidence: v.Confidence,
		Timestamp:  v.Timestamp,
		Symbology:  v.Symbology,
		Error:      v.Error,
	}
	return nil
}
