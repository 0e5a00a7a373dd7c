package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/export"
	"github.com/joseph-ayodele/kpi-extractor/internal/staging"
)

// handleExtractKPI returns the coerced record for all uploaded files combined.
func (s *Server) handleExtractKPI(w http.ResponseWriter, r *http.Request) {
	uploads, done, err := s.readUploads(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "File processing error: "+common.MessageOf(err))
		return
	}
	defer done()

	res, err := s.pipeline.ExtractSingle(r.Context(), uploads)
	if err != nil {
		writeError(w, statusFor(err), "File processing error: "+common.MessageOf(err))
		return
	}
	if res.Err != nil {
		writeJSON(w, http.StatusOK, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Record)
}

// handleExtractKPIMultiple extracts one combined record and publishes it as
// the downloadable spreadsheet.
func (s *Server) handleExtractKPIMultiple(w http.ResponseWriter, r *http.Request) {
	uploads, done, err := s.readUploads(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "File processing error: "+common.MessageOf(err))
		return
	}
	defer done()

	res, _, err := s.pipeline.ExtractBatch(r.Context(), uploads)
	if err != nil {
		writeError(w, statusFor(err), "File processing error: "+common.MessageOf(err))
		return
	}
	if res.Err != nil {
		writeJSON(w, http.StatusOK, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   fmt.Sprintf("KPIs extracted from %d file(s). Download the Excel file.", len(uploads)),
		"excel_url": downloadPath,
	})
}

func (s *Server) handleDownloadExcel(w http.ResponseWriter, r *http.Request) {
	f, err := s.pipeline.Artifacts.Open()
	if errors.Is(err, export.ErrArtifactNotFound) {
		writeError(w, http.StatusOK, "No Excel file available. Extract KPIs first.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading Excel file: "+err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading Excel file: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(downloadName))
	http.ServeContent(w, r, downloadName, info.ModTime(), f)
}

var errNoFiles = fmt.Errorf("%w: no files uploaded", common.ErrInvalidInput)

// readUploads parses the multipart form. Files may arrive under "files" or
// "file". done closes every part and removes multipart temp files.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) ([]staging.Upload, func(), error) {
	if s.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, fmt.Errorf("%w: request exceeds %d bytes", common.ErrInvalidInput, tooBig.Limit)
		}
		return nil, nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["files"]...)
	headers = append(headers, r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		_ = r.MultipartForm.RemoveAll()
		return nil, nil, errNoFiles
	}

	var closers []io.Closer
	done := func() {
		for _, c := range closers {
			_ = c.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}
	uploads := make([]staging.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			done()
			return nil, nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		closers = append(closers, f)
		uploads = append(uploads, staging.Upload{Filename: fh.Filename, Content: f})
	}
	return uploads, done, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
