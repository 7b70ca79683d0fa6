package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cast"

	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/security/validation"
	"github.com/username/tradejournal/src/services"
	"github.com/username/tradejournal/src/utils"
)

type uploadedFile struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload pulls the "file" part out of a multipart request and runs the
// size, content type and magic byte checks. It writes the error response
// itself and returns false when the request is rejected.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request, userID string) (*uploadedFile, bool) {
	log := logger.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", h.maxUploadBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", h.maxUploadBytes/(1024*1024)), http.StatusBadRequest)
		return nil, false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	if err := validation.ValidateFileSize(fileHeader.Size, h.maxUploadBytes); err != nil {
		log.Warn("Uploaded file rejected by size", "userID", userID, "fileSize", fileHeader.Size, "limit", h.maxUploadBytes)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		log.Error("Failed to read uploaded file", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
		return nil, false
	}
	if err := validation.ValidateFileSize(int64(len(data)), h.maxUploadBytes); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	detected, err := validation.ValidateFileContentByMagicBytes(data)
	if err != nil {
		log.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	log.Info("File content validated by magic bytes", "userID", userID, "filename", fileHeader.Filename,
		"clientType", clientContentType, "detectedType", detected)

	return &uploadedFile{
		filename:    validation.SanitizeFilename(fileHeader.Filename),
		contentType: clientContentType,
		data:        data,
	}, true
}

// HandleUpload stages a file and returns the detection and mapping preview.
func (h *ImportHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	f, ok := h.readUpload(w, r, userID)
	if !ok {
		return
	}

	result, err := h.commit.Upload(r.Context(), userID, f.filename, f.contentType, f.data)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

// HandleImport runs a whole file through detection, parsing and upsert.
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	f, ok := h.readUpload(w, r, userID)
	if !ok {
		return
	}

	resp, err := h.commit.Import(r.Context(), userID, services.ImportRequest{
		Filename:    f.filename,
		ContentType: f.contentType,
		Data:        f.data,
		BrokerID:    strings.ToLower(strings.TrimSpace(r.FormValue("broker"))),
		Timezone:    strings.TrimSpace(r.FormValue("tz")),
		Currency:    strings.TrimSpace(r.FormValue("currency")),
		DryRun:      cast.ToBool(r.FormValue("dryRun")),
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	utils.SendJSON(w, resp, status)
}

// sendServiceError maps service errors to HTTP statuses. Internal details are
// logged, not returned.
func (h *ImportHandler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, services.ErrUploadNotFound), errors.Is(err, services.ErrJobNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrInvalidMapping),
		errors.Is(err, services.ErrUnknownBroker),
		errors.Is(err, services.ErrParsingFailed):
		log.Warn("Import request rejected", "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrMissingIdentity):
		utils.SendJSONError(w, err.Error(), http.StatusUnauthorized)
	default:
		log.Error("Internal error handling import request", "error", err)
		utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
	}
}
