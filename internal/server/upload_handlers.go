package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/ledger"
	"github.com/aristath/finhub/internal/parsers"
)

const maxUploadBytes = 50 * 1024 * 1024

var allowedUploadExtensions = map[string]bool{
	".ofx": true, ".qfx": true, ".csv": true, ".txt": true,
}

// UploadHandler implements POST /api/upload (§6): manual statement import
// for the "upload" InstitutionLink source kind.
type UploadHandler struct {
	uploadDir string
	ledger    *ledger.Adapter
}

// NewUploadHandler builds a new UploadHandler rooted at uploadDir.
func NewUploadHandler(uploadDir string, ledgerAdapter *ledger.Adapter) *UploadHandler {
	return &UploadHandler{uploadDir: uploadDir, ledger: ledgerAdapter}
}

// RegisterRoutes wires /api/upload.
func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleUpload)
}

// handleUpload accepts a single multipart file, persists it under
// uploads/<millis>-<sanitizedName>, parses it by extension, bridges the
// result to the ledger, and removes the temp file on every exit path.
func (h *UploadHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		accountID = r.FormValue("account_id")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apperr.Validation("file exceeds the 50MB upload limit"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validation("missing file field"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExtensions[ext] {
		writeError(w, apperr.Validation("unsupported file type"))
		return
	}

	sanitized := sanitizeFilename(header.Filename)
	destPath := filepath.Join(h.uploadDir, fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitized))

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		writeError(w, apperr.Internal("failed to prepare upload directory", err))
		return
	}
	dest, err := os.Create(destPath)
	if err != nil {
		writeError(w, apperr.Internal("failed to store upload", err))
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		os.Remove(destPath)
		writeError(w, apperr.Internal("failed to store upload", err))
		return
	}
	dest.Close()
	defer os.Remove(destPath)

	raw, err := os.ReadFile(destPath)
	if err != nil {
		writeError(w, apperr.Internal("failed to read upload", err))
		return
	}

	var txns []parsers.RawTransaction
	switch ext {
	case ".ofx", ".qfx":
		txns, _ = parsers.ParseOFX(string(raw))
	case ".csv", ".txt":
		txns = parsers.ParseCSV(string(raw), parsers.CSVProfile{})
	}

	if accountID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"parsed": len(txns), "imported": 0})
		return
	}

	result := h.ledger.UpsertTransactions(r.Context(), "upload:"+userID, accountID, txns)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"parsed":   len(txns),
		"imported": result.Added,
		"skipped":  result.Skipped,
	})
}

// sanitizeFilename replaces path separators and NUL bytes so the stored
// upload can never escape the upload directory (§6).
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	var b strings.Builder
	for _, r := range base {
		switch r {
		case '\\', '/', ':', 0:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
