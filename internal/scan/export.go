package scan

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/zombor/scanlens/internal/extract"
)

// maxContentPrefix is the number of characters of raw content exported
const maxContentPrefix = 150

// ExportRow is the flat, tabular form of a ScanResult
type ExportRow struct {
	Timestamp     time.Time
	Kind          Kind
	ContentPrefix string
	Confidence    float64
	PayloadJSON   string
}

// NewExportRow flattens r
func NewExportRow(r *ScanResult) (ExportRow, error) {
	payload, err := extract.MarshalPayload(r.Payload)
	if err != nil {
		return ExportRow{}, err
	}

	prefix := []rune(r.RawContent)
	if len(prefix) > maxContentPrefix {
		prefix = prefix[:maxContentPrefix]
	}

	return ExportRow{
		Timestamp:     r.Timestamp,
		Kind:          r.Kind,
		ContentPrefix: string(prefix),
		Confidence:    r.Confidence,
		PayloadJSON:   string(payload),
	}, nil
}

// WriteCSV writes a header and one row per result
func WriteCSV(w io.Writer, results []*ScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "kind", "content", "confidence", "payload"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range results {
		row, err := NewExportRow(r)
		if err != nil {
			return fmt.Errorf("exporting scan %s: %w", r.ID, err)
		}
		err = cw.Write([]string{
			row.Timestamp.Format(time.RFC3339),
			string(row.Kind),
			row.ContentPrefix,
			strconv.FormatFloat(row.Confidence, 'f', -1, 64),
			row.PayloadJSON,
		})
		if err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
