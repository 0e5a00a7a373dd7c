package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/repository"
)

const (
	msgSaved     = "KPI data saved successfully."
	msgDuplicate = "Duplicate entry. KPI data already exists for this PO No."
)

// handleSaveKPIs appends one record (as returned by /extract_kpi/) to the store.
func (s *Server) handleSaveKPIs(w http.ResponseWriter, r *http.Request) {
	if s.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		msg := "expected a JSON object"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusBadRequest, "Invalid KPI data: "+msg)
		return
	}

	fileName, _ := body[constants.FileNameField].(string)
	rec := s.pipeline.Coercer.Coerce(body, strings.TrimSpace(fileName))

	out, err := s.store.Append(r.Context(), rec)
	if err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Error("store.append_error", "error", err)
		writeError(w, statusFor(err), "Error saving KPI data: "+common.MessageOf(err))
		return
	}
	if out == repository.Duplicate {
		writeJSON(w, http.StatusOK, map[string]string{"message": msgDuplicate})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgSaved})
}

func (s *Server) handleGetKPIs(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ReadAll(r.Context())
	if errors.Is(err, repository.ErrStoreNotFound) {
		writeError(w, http.StatusOK, "CSV file not found.")
		return
	}
	if err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Error("store.read_error", "error", err)
		writeError(w, http.StatusInternalServerError, "Error reading KPI data: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
