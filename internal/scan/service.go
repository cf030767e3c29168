package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/scanlens/internal/scanning"
)

// Upload is one uploaded image
type Upload struct {
	Filename string
	Image    scanning.Image
}

// Service ties the pipeline to persistence, the upload archive and history
type Service struct {
	pipeline *Pipeline
	db       DB
	archive  Archive
	history  *History
	workers  int
}

// NewService creates a Service. archive may be nil to skip archiving uploads.
func NewService(pipeline *Pipeline, db DB, archive Archive, history *History, workers int) *Service {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	return &Service{
		pipeline: pipeline,
		db:       db,
		archive:  archive,
		history:  history,
		workers:  workers,
	}
}

// Scan recognizes one upload, records it in history and archives the image
func (s *Service) Scan(ctx context.Context, upload Upload, mode Mode, progress func(float64)) (*ScanResult, error) {
	result, err := s.pipeline.Recognize(ctx, upload.Image, mode,
		WithProgress(progress),
		WithOnComplete(s.history.Add),
	)
	if err != nil {
		slog.Error("Failed to recognize scan",
			"filename", upload.Filename,
			"content_type", upload.Image.ContentType,
			"file_size", len(upload.Image.Data),
			"error", err,
		)
		return nil, err
	}

	s.archiveUpload(ctx, result, upload)
	return result, nil
}

// ScanBatch recognizes uploads concurrently; outcomes are in input order
func (s *Service) ScanBatch(ctx context.Context, uploads []Upload, mode Mode) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(uploads))

	var g errgroup.Group
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}
	for i, upload := range uploads {
		g.Go(func() error {
			result, err := s.Scan(ctx, upload, mode, nil)
			outcomes[i] = BatchOutcome{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// archiveUpload is best effort; the scan is already saved
func (s *Service) archiveUpload(ctx context.Context, result *ScanResult, upload Upload) {
	if s.archive == nil || result.RecordID == "" {
		return
	}

	name := fmt.Sprintf("%s_%s", result.ID, sanitizeFilename(upload.Filename))
	path, err := s.archive.Save(ctx, name, upload.Image.Data)
	if err != nil {
		slog.Warn("Failed to archive upload", "id", result.RecordID, "error", err)
		return
	}
	if err := s.db.SaveImageRef(result.RecordID, ImageRef{Path: path, ContentType: upload.Image.ContentType}); err != nil {
		slog.Warn("Failed to save image reference", "id", result.RecordID, "error", err)
		if err := s.archive.Delete(ctx, path); err != nil {
			slog.Warn("Failed to delete orphaned upload", "path", path, "error", err)
		}
	}
}

// GetScan retrieves a stored scan by ID
func (s *Service) GetScan(id string) (*Record, error) {
	record, err := s.db.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return record, nil
}

// ListScans returns stored scans, optionally only one category
func (s *Service) ListScans(category string) ([]*Record, error) {
	records, err := s.db.ListScans(category)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return records, nil
}

// DeleteScan removes a stored scan and its archived upload
func (s *Service) DeleteScan(ctx context.Context, id string) error {
	if _, err := s.db.GetScan(id); err != nil {
		return fmt.Errorf("getting scan for deletion: %w", err)
	}

	if ref, err := s.db.GetImageRef(id); err == nil && s.archive != nil {
		if err := s.archive.Delete(ctx, ref.Path); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete upload", "path", ref.Path, "error", err)
		}
	}

	if err := s.db.DeleteScan(id); err != nil {
		return fmt.Errorf("deleting scan from database: %w", err)
	}
	return nil
}

// GetScanImage returns the archived upload of a stored scan
func (s *Service) GetScanImage(ctx context.Context, id string) ([]byte, string, error) {
	if s.archive == nil {
		return nil, "", fmt.Errorf("no upload archive configured")
	}

	ref, err := s.db.GetImageRef(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting image reference: %w", err)
	}

	data, err := s.archive.Get(ctx, ref.Path)
	if err != nil {
		return nil, "", fmt.Errorf("getting upload: %w", err)
	}
	return data, ref.ContentType, nil
}

// History returns this process's recent results, oldest first
func (s *Service) History() []*ScanResult {
	return s.history.Snapshot()
}

// ExportHistory writes the recent results as CSV
func (s *Service) ExportHistory(w io.Writer) error {
	return WriteCSV(w, s.history.Snapshot())
}
