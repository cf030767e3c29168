package scan

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/zombor/scanlens/internal/scanning"
)

// maxUploadSize bounds the whole multipart body (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes {"error": message, "kind": kind}
func jsonError(w http.ResponseWriter, code int, kind FailureKind, message string) {
	setCORSHeaders(w)
	body := map[string]string{"error": message}
	if kind != "" {
		body["kind"] = string(kind)
	}
	writeJSON(w, code, body)
}

// failureStatus maps a recognition failure to an HTTP status
func failureStatus(kind FailureKind) int {
	switch kind {
	case FailureNoCodeFound:
		return http.StatusUnprocessableEntity
	case FailureInvalidImage:
		return http.StatusBadRequest
	case FailureOCR:
		return http.StatusBadGateway
	case FailurePermissionDenied:
		return http.StatusForbidden
	case FailureCanceled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type uploadOutcome struct {
	Filename string      `json:"filename"`
	Result   *ScanResult `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
	Kind     FailureKind `json:"kind,omitempty"`
}

// handleUploadScans recognizes every "file" part of a multipart upload.
// A single file answers with the result itself; several answer with a list.
func (s *Server) handleUploadScans(w http.ResponseWriter, r *http.Request) {
	mode, err := ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "", err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "Upload is too large. Maximum size is 50MB."
		}
		jsonError(w, http.StatusBadRequest, "", errorMsg)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		jsonError(w, http.StatusBadRequest, "", "No file was selected. Please choose a file to upload.")
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			jsonError(w, http.StatusInternalServerError, "", "Error reading file. Please try again.")
			return
		}
		uploads = append(uploads, upload)
	}

	if len(uploads) == 1 {
		result, err := s.service.Scan(r.Context(), uploads[0], mode, nil)
		if err != nil {
			kind := FailureKindOf(err)
			jsonError(w, failureStatus(kind), kind, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	outcomes := s.service.ScanBatch(r.Context(), uploads, mode)
	response := make([]uploadOutcome, len(outcomes))
	for i, o := range outcomes {
		response[i] = uploadOutcome{Filename: uploads[i].Filename, Result: o.Result}
		if o.Err != nil {
			response[i].Error = o.Err.Error()
			response[i].Kind = FailureKindOf(o.Err)
		}
	}
	writeJSON(w, http.StatusMultiStatus, response)
}

func readUpload(header *multipart.FileHeader) (Upload, error) {
	f, err := header.Open()
	if err != nil {
		return Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, err
	}

	return Upload{
		Filename: header.Filename,
		Image: scanning.Image{
			Data:        data,
			ContentType: uploadContentType(header.Header.Get("Content-Type"), header.Filename),
		},
	}, nil
}

// uploadContentType falls back to the file extension when the part has no type
func uploadContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	if guessed := scanning.ContentTypeFromFilename(filename); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

// handleListScans returns stored scans, filtered by ?category=
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListScans(r.URL.Query().Get("category"))
	if err != nil {
		slog.Error("Error listing scans", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetScan returns a single stored scan
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetScan(r.PathValue("id"))
	if err != nil {
		corsError(w, "Scan not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetScanImage returns the archived upload of a scan
func (s *Server) handleGetScanImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetScanImage(r.Context(), r.PathValue("id"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteScan deletes a stored scan
func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteScan(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrScanNotFound) {
			corsError(w, "Scan not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting scan", "error", err)
		corsError(w, "Error deleting scan", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory returns this process's recent results
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.History())
}

// handleExportHistory streams recent results as CSV
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="scan-history.csv"`)
	if err := s.service.ExportHistory(w); err != nil {
		slog.Error("Error exporting history", "error", err)
	}
}
