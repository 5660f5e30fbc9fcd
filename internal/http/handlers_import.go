package http

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"moneta/internal/core"
	applog "moneta/internal/log"
)

// maxImportSize bounds the uploaded CSV file (8 MiB).
const maxImportSize = 8 << 20

// handleImport ingests a CSV upload (multipart field "file"). Bad rows
// are reported per row and never abort the batch; the response always
// carries the imported count next to the row errors.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed multipart body: %v", core.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file field", core.ErrValidation))
		return
	}
	defer file.Close()

	result, err := s.importer.ImportCSV(r.Context(), file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "CSV import completed",
		applog.FieldOperation, applog.OpImport,
		"file", header.Filename,
		applog.FieldImported, result.Imported,
		applog.FieldFailed, len(result.Errors))

	atomic.AddInt64(&s.appMetrics.totalImportedRows, int64(result.Imported))
	if result.Imported > 0 {
		s.invalidateAggregates()
	}
	writeJSON(w, http.StatusOK, result)
}
