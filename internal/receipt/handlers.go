package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/bill-splitter/internal/scanning"
	"github.com/zombor/bill-splitter/internal/split"
)

// Uploads up to 50MB to handle high-resolution phone photos
const maxUploadSize = 50 << 20

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps a service error onto a status code
func writeServiceError(w http.ResponseWriter, err error) {
	var extractionErr *scanning.ExtractionError
	switch {
	case errors.As(err, &extractionErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    "Could not read the receipt. Please try again or enter it manually.",
			"attempts": extractionErr.Attempts,
		})
	case errors.Is(err, scanning.ErrNoStrategies):
		writeError(w, "Receipt scanning is not configured", http.StatusServiceUnavailable)
	case errors.Is(err, scanning.ErrUnreadableImage):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound),
		errors.Is(err, split.ErrItemNotFound),
		errors.Is(err, split.ErrParticipantNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNoImage):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrProtectedParticipant):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, split.ErrPercentOutOfRange),
		errors.Is(err, split.ErrInvalidParticipant),
		errors.Is(err, split.ErrDuplicateItem),
		errors.Is(err, ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeBody reads a JSON request body into v
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	return dec.Decode(v)
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleScanReceipt handles receipt upload
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		// HEIC uploads from phones often arrive without a useful type
		if guessed := contentTypeFor(filepath.Base(header.Filename)); guessed != "" {
			contentType = guessed
		}
	}

	receipt, err := s.service.ScanReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		writeServiceError(w, err)
		return
	}

	summary, err := s.service.Split(receipt.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// handleCreateReceipt creates a receipt from typed-in items
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req ManualReceipt
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.service.CreateReceipt(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	summary, err := s.service.Split(receipt.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// handleGetReceipt returns a single receipt with its split
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Split(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleGetSplit returns only the computed split
func (s *Server) handleGetSplit(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Split(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"split":             summary.Split,
		"rounded":           summary.Rounded,
		"funds_unallocated": summary.FundsUnallocated,
	})
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeImage(w http.ResponseWriter, data []byte, contentType string) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}

// handleGetReceiptImage returns the uploaded image for a receipt
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptImage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeImage(w, data, contentType)
}

// handleGetImage proxies a stored object by key
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, "Missing key", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.FetchImage(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeImage(w, data, contentType)
}

// handleSetPercentages replaces a receipt's tax and tip
func (s *Server) handleSetPercentages(w http.ResponseWriter, r *http.Request) {
	var pct split.Percentages
	if err := decodeBody(r, &pct); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	summary, err := s.service.SetPercentages(r.PathValue("id"), pct)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAddItem appends an item; the body uses the same loose fields as scans
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var rec split.Record
	if err := decodeBody(r, &rec); err != nil || rec == nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	summary, err := s.service.AddItem(r.PathValue("id"), rec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// handleUpdateItem changes fields on an item
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch split.ItemPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	summary, err := s.service.UpdateItem(r.PathValue("id"), r.PathValue("itemID"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleDeleteItem removes an item
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.DeleteItem(r.PathValue("id"), r.PathValue("itemID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleToggleAssignment flips one participant on an item
func (s *Server) handleToggleAssignment(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ToggleAssignment(r.PathValue("id"), r.PathValue("itemID"), r.PathValue("participant"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleClearAssignments makes an item communal again
func (s *Server) handleClearAssignments(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ClearAssignments(r.PathValue("id"), r.PathValue("itemID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAddParticipant adds a person to the bill
func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	summary, err := s.service.AddParticipant(r.PathValue("id"), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleRemoveParticipant takes a person off the bill
func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.RemoveParticipant(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCalculate splits a bill without saving it
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	calc, err := s.service.Calculate(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}
