package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"moneta/internal/core"
	applog "moneta/internal/log"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to HTTP statuses: validation 400,
// not-found 404, conflict 409, anything else 500. The error text is
// returned to the client for the 4xx family only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pathLabel reads and validates the {name} path value of a taxonomy route.
func pathLabel(r *http.Request) (string, error) {
	name := core.NormalizeLabel(r.PathValue("name"))
	if err := core.ValidateLabelName(name); err != nil {
		return "", err
	}
	return name, nil
}

// pathID reads the {id} path value of a transaction route.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid transaction id %q", core.ErrValidation, r.PathValue("id"))
	}
	return id, nil
}

// filterKey builds a cache key that identifies a filter exactly.
// Slices are normalized before keying, so equivalent filters share an
// entry.
func filterKey(f core.Filter) string {
	var b strings.Builder
	b.WriteString(string(f.Range.Kind))
	if f.Range.Kind == core.RangeCustom {
		b.WriteString("|")
		b.WriteString(f.Range.Start.String())
		b.WriteString("|")
		b.WriteString(f.Range.End.String())
	}
	b.WriteString("|c:")
	b.WriteString(strings.Join(f.Categories, ","))
	b.WriteString("|t:")
	b.WriteString(strings.Join(f.Tags, ","))
	return b.String()
}

// formatEuros formats cents as a Euro currency string (e.g., "€12,34").
func formatEuros(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	euros := cents / 100
	rem := cents % 100
	s := strconv.FormatInt(euros, 10) + "," + fmt.Sprintf("%02d", rem)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
