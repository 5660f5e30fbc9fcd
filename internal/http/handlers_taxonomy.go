package http

import (
	"net/http"

	"moneta/internal/services"
)

// renameResponse reports the outcome of a rename. Conflict is true only
// when the target name already exists and the caller must confirm a merge
// instead; the HTTP status is 409 in that case.
type renameResponse struct {
	Name     string `json:"name"`
	Conflict bool   `json:"conflict,omitempty"`
}

// The category and tag route sets share their handler bodies; only the
// service calls differ, so each pair delegates to a small closure table.

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	names, err := s.taxonomy.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": names})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	names, err := s.taxonomy.ListTags(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": names})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeLabel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := s.taxonomy.AddCategory(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateAggregates()
	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

// handleRename runs a rename in either namespace and translates the
// tagged outcome: success 200, existing target 409 with conflict: true.
func (s *Server) handleRename(
	w http.ResponseWriter, r *http.Request,
	rename func(oldName, newName string) (services.RenameOutcome, error),
) {
	oldName, err := pathLabel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	newName, err := decodeLabel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := rename(oldName, newName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if outcome == services.ConflictRequiresMerge {
		writeJSON(w, http.StatusConflict, renameResponse{Name: newName, Conflict: true})
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, renameResponse{Name: newName})
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	s.handleRename(w, r, func(oldName, newName string) (services.RenameOutcome, error) {
		return s.taxonomy.RenameCategory(r.Context(), oldName, newName)
	})
}

func (s *Server) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	s.handleRename(w, r, func(oldName, newName string) (services.RenameOutcome, error) {
		return s.taxonomy.RenameTag(r.Context(), oldName, newName)
	})
}

// handleMerge folds the source label from the route into the target from
// the body in either namespace.
func (s *Server) handleMerge(
	w http.ResponseWriter, r *http.Request,
	merge func(source, target string) error,
) {
	source, err := pathLabel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := decodeMergeTarget(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := merge(source, target); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"merged_into": target})
}

func (s *Server) handleMergeCategories(w http.ResponseWriter, r *http.Request) {
	s.handleMerge(w, r, func(source, target string) error {
		return s.taxonomy.MergeCategories(r.Context(), source, target)
	})
}

func (s *Server) handleMergeTags(w http.ResponseWriter, r *http.Request) {
	s.handleMerge(w, r, func(source, target string) error {
		return s.taxonomy.MergeTags(r.Context(), source, target)
	})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	name, err := pathLabel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.taxonomy.DeleteCategory(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateAggregates()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	name, err := pathLabel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.taxonomy.DeleteTag(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateAggregates()
	w.WriteHeader(http.StatusNoContent)
}
