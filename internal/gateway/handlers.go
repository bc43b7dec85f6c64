package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/alchemab/aab/internal/cloud/providers/s3"
	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/models"
)

const (
	msgNoQuery       = "No queryStringParameters provided or invalid format."
	msgNoFilePath    = "No file_path querystring parameter provided."
	msgNoExtension   = "File path does not contain a valid file extension."
	msgMissingParams = "Missing required parameters"
)

// hashedName builds a fresh object key: <uuid>_<suffix><ext>.
func hashedName(suffix, ext string) string {
	return uuid.NewString() + "_" + suffix + ext
}

// extension returns the extension of the last path element, or "" when it
// has none. A leading dot alone does not count.
func extension(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	ext := path.Ext(base)
	if ext == base || ext == "." {
		return ""
	}
	return ext
}

// backendError logs err and answers 500.
func (s *Server) backendError(w nethttp.ResponseWriter, operation string, err error) {
	BackendFailures.WithLabelValues(operation).Inc()
	s.logger.Error().Err(err).Str("operation", operation).Msg("Storage backend call failed")
	writeError(w, nethttp.StatusInternalServerError, err.Error())
}

// newObjectKey validates file_path and returns a fresh hashed name for it.
func (s *Server) newObjectKey(w nethttp.ResponseWriter, r *nethttp.Request) (string, bool) {
	q := r.URL.Query()
	if len(q) == 0 {
		writeError(w, nethttp.StatusBadRequest, msgNoQuery)
		return "", false
	}
	filePath := q.Get("file_path")
	if filePath == "" {
		writeError(w, nethttp.StatusBadRequest, msgNoFilePath)
		return "", false
	}
	ext := extension(filePath)
	if ext == "" {
		writeError(w, nethttp.StatusBadRequest, msgNoExtension)
		return "", false
	}
	return s.newName(ext), true
}

func (s *Server) handleBegin(w nethttp.ResponseWriter, r *nethttp.Request) {
	key, ok := s.newObjectKey(w, r)
	if !ok {
		return
	}

	uploadID, err := s.backend.CreateMultipartUpload(r.Context(), key, r.Header.Get("Content-Type"))
	if err != nil {
		s.backendError(w, OpBegin, err)
		return
	}

	s.logger.Info().Str("hashed_name", key).Str("upload_id", uploadID).Str("file_path", r.URL.Query().Get("file_path")).Msg("Multipart upload started")
	writeJSON(w, nethttp.StatusOK, models.MultipartUploadStart{
		UploadID:   uploadID,
		HashedName: key,
		Status:     nethttp.StatusOK,
	})
}

func (s *Server) handlePartURL(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()
	if len(q) == 0 {
		writeError(w, nethttp.StatusBadRequest, "No query parameters provided")
		return
	}
	key, uploadID, rawPart := q.Get("file_path"), q.Get("uploadId"), q.Get("partNumber")
	if key == "" || uploadID == "" || rawPart == "" {
		writeError(w, nethttp.StatusBadRequest, msgMissingParams)
		return
	}
	partNumber, err := strconv.ParseInt(rawPart, 10, 32)
	if err != nil || partNumber < 1 || partNumber > constants.MaxParts {
		writeError(w, nethttp.StatusBadRequest, fmt.Sprintf("partNumber must be between 1 and %d", constants.MaxParts))
		return
	}

	u, err := s.backend.PresignUploadPart(r.Context(), key, uploadID, int32(partNumber))
	if err != nil {
		s.backendError(w, OpPartURL, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, models.PartUploadURL{URL: u, Status: nethttp.StatusOK})
}

func (s *Server) handleComplete(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body models.CompleteMultipartUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, nethttp.StatusBadRequest, "Request body is not valid JSON")
		return
	}
	q := r.URL.Query()
	key, uploadID := q.Get("file_path"), q.Get("uploadId")
	if key == "" || uploadID == "" || len(body.Parts) == 0 {
		writeError(w, nethttp.StatusBadRequest, msgMissingParams)
		return
	}

	location, err := s.backend.CompleteMultipartUpload(r.Context(), key, uploadID, body.Parts)
	if err != nil {
		s.backendError(w, OpComplete, err)
		return
	}

	s.logger.Info().Str("hashed_name", key).Int("parts", len(body.Parts)).Msg("Multipart upload completed")
	writeJSON(w, nethttp.StatusOK, models.MultipartUploadResult{
		Location:   location,
		HashedName: key,
		Status:     nethttp.StatusOK,
	})
}

func (s *Server) handleAbort(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()
	if len(q) == 0 {
		writeError(w, nethttp.StatusBadRequest, "No query parameters provided")
		return
	}
	key, uploadID := q.Get("file_path"), q.Get("uploadId")
	if key == "" || uploadID == "" {
		writeError(w, nethttp.StatusBadRequest, msgMissingParams)
		return
	}

	if err := s.backend.AbortMultipartUpload(r.Context(), key, uploadID); err != nil {
		s.backendError(w, OpAbort, err)
		return
	}

	s.logger.Info().Str("hashed_name", key).Str("upload_id", uploadID).Msg("Multipart upload aborted")
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "Multipart upload aborted"})
}

func (s *Server) handleUploadURL(w nethttp.ResponseWriter, r *nethttp.Request) {
	key, ok := s.newObjectKey(w, r)
	if !ok {
		return
	}

	u, err := s.backend.PresignPutObject(r.Context(), key, "")
	if err != nil {
		s.backendError(w, OpUploadURL, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, models.SingleUploadURL{URL: u, HashedName: key})
}

func (s *Server) handleDownloadFile(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HashID == "" {
		writeError(w, nethttp.StatusBadRequest, "hashId is required")
		return
	}
	if strings.ContainsAny(req.HashID, "/\\") {
		writeError(w, nethttp.StatusBadRequest, "hashId must not contain path separators")
		return
	}

	u, err := s.backend.PresignResult(r.Context(), fmt.Sprintf(constants.ResultsKeyFormat, req.HashID))
	switch {
	case errors.Is(err, s3.ErrResultNotFound):
		writeError(w, nethttp.StatusNotFound, err.Error())
		return
	case err != nil:
		s.backendError(w, OpDownloadFile, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, models.DownloadResponse{PresignedURL: u})
}
