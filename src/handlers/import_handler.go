package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/username/tradejournal/src/database"
	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/mapping"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers"
	"github.com/username/tradejournal/src/services"
	"github.com/username/tradejournal/src/utils"
)

const maxJSONBody = 1 << 20

type ImportHandler struct {
	commit         *services.CommitService
	registry       *parsers.Registry
	presets        mapping.PresetStore
	runs           services.ImportRunStore
	store          services.TradeStore
	validate       *validator.Validate
	maxUploadBytes int64
}

func NewImportHandler(
	commit *services.CommitService,
	registry *parsers.Registry,
	presets mapping.PresetStore,
	runs services.ImportRunStore,
	store services.TradeStore,
	maxUploadBytes int64,
) *ImportHandler {
	return &ImportHandler{
		commit:         commit,
		registry:       registry,
		presets:        presets,
		runs:           runs,
		store:          store,
		validate:       commit.Validator(),
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the import routes on mux, wrapped in auth.
func (h *ImportHandler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	protected := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	mux.Handle("POST /api/import/upload", protected(h.HandleUpload))
	mux.Handle("POST /api/import", protected(h.HandleImport))
	mux.Handle("POST /api/import/commit-start", protected(h.HandleCommitStart))
	mux.Handle("POST /api/import/commit-chunk", protected(h.HandleCommitChunk))
	mux.Handle("GET /api/import/jobs/{jobId}/errors.csv", protected(h.HandleErrorsCSV))
	mux.Handle("GET /api/import/runs", protected(h.HandleListRuns))
	mux.Handle("GET /api/import/presets", protected(h.HandleListPresets))
	mux.Handle("POST /api/import/presets", protected(h.HandleSavePreset))
	mux.Handle("GET /api/import/presets/{id}", protected(h.HandleGetPreset))
	mux.HandleFunc("GET /api/import/adapters", h.HandleListAdapters)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
	}
	return nil
}

func (h *ImportHandler) HandleCommitStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	var req services.CommitStartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	res, err := h.commit.CommitStart(r.Context(), userID, req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, res, http.StatusOK)
}

func (h *ImportHandler) HandleCommitChunk(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	var req services.CommitChunkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	res, err := h.commit.CommitChunk(r.Context(), userID, req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, res, http.StatusOK)
}

func (h *ImportHandler) HandleErrorsCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	jobID := r.PathValue("jobId")
	data, err := h.commit.ErrorsCSV(userID, jobID)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import-errors-%s.csv"`, jobID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.FromContext(r.Context()).Error("Failed to write errors csv", "jobID", jobID, "error", err)
	}
}

func (h *ImportHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 1 || v > 500 {
			utils.SendJSONError(w, "limit must be an integer between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = v
	}
	runs, err := h.runs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list import runs", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to load import history", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]any{"runs": runs}, http.StatusOK)
}

type presetListResponse struct {
	Fields []mapping.CanonicalField `json:"fields"`
	Broker []mapping.Preset         `json:"broker"`
	User   []models.MappingPreset   `json:"user"`
}

// HandleListPresets returns the built-in and user presets, with ETag support.
func (h *ImportHandler) HandleListPresets(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	log := logger.FromContext(r.Context())
	userPresets, err := h.presets.List(r.Context(), userID)
	if err != nil {
		log.Error("Failed to list presets", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to load presets", http.StatusInternalServerError)
		return
	}
	resp := presetListResponse{Fields: mapping.CanonicalFields, Broker: mapping.Presets(), User: userPresets}

	w.Header().Set("Cache-Control", "no-cache, private")
	if etag, err := utils.GenerateETag(resp); err == nil && etag != "" {
		quoted := fmt.Sprintf("\"%s\"", etag)
		w.Header().Set("ETag", quoted)
		for _, c := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(c) == quoted {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else if err != nil {
		log.Error("Failed to generate ETag for presets", "userID", userID, "error", err)
	}
	utils.SendJSON(w, resp, http.StatusOK)
}

type savePresetRequest struct {
	Name      string            `json:"name" validate:"required,max=100"`
	BrokerKey string            `json:"brokerKey" validate:"omitempty,max=32"`
	Mapping   map[string]string `json:"mapping" validate:"required,min=1"`
}

func (h *ImportHandler) HandleSavePreset(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	var req savePresetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		utils.SendJSONError(w, "invalid preset: "+err.Error(), http.StatusBadRequest)
		return
	}
	preset, err := mapping.SavePreset(r.Context(), h.presets, userID, req.Name, req.BrokerKey, mapping.Sanitize(req.Mapping))
	if err != nil {
		if errors.Is(err, mapping.ErrInvalidPreset) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to save preset", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to save preset", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, preset, http.StatusCreated)
}

// HandleGetPreset returns a stored preset. With ?headers=a,b,c the preset is
// applied to those headers and the resulting mapping is returned instead.
func (h *ImportHandler) HandleGetPreset(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	id, err := cast.ToInt64E(r.PathValue("id"))
	if err != nil || id <= 0 {
		utils.SendJSONError(w, "invalid preset id", http.StatusBadRequest)
		return
	}

	var body any
	if raw := r.URL.Query().Get("headers"); raw != "" {
		m, lerr := mapping.LoadPreset(r.Context(), h.presets, userID, id, strings.Split(raw, ","))
		err = lerr
		body = map[string]any{"mapping": m, "mappingErrors": mapping.Validate(m)}
	} else {
		body, err = h.presets.Get(r.Context(), userID, id)
	}
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.SendJSONError(w, "preset not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to load preset", "userID", userID, "presetID", id, "error", err)
		utils.SendJSONError(w, "Failed to load preset", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, body, http.StatusOK)
}

type adapterInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (h *ImportHandler) HandleListAdapters(w http.ResponseWriter, r *http.Request) {
	out := []adapterInfo{}
	for _, a := range h.registry.Adapters() {
		out = append(out, adapterInfo{ID: a.ID(), Label: a.Label()})
	}
	utils.SendJSON(w, map[string]any{"adapters": out}, http.StatusOK)
}

func (h *ImportHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("Health check failed", "error", err)
		utils.SendJSONError(w, "trade store unavailable", http.StatusServiceUnavailable)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
