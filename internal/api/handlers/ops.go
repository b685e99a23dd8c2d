package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/api"
	"github.com/jpark8215/internal-chatbot/internal/api/middleware"
	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CacheStatsProvider interface {
	Stats() []cache.Stats
}

type SourceStatsProvider interface {
	Stats(ctx context.Context) (*service.SourceStats, error)
}

type SyncStatusProvider interface {
	SyncStatus(ctx context.Context, root string) (*service.SyncStatus, error)
}

type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, f *domain.SourceFeedback) error
}

// OpsConfig wires the operational endpoints. Nil dependencies answer 503.
type OpsConfig struct {
	DB       Pinger
	Caches   CacheStatsProvider
	Sources  SourceStatsProvider
	Sync     SyncStatusProvider
	Feedback FeedbackRecorder
	Root     string
}

type OpsHandler struct {
	cfg OpsConfig
}

func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	if h.cfg.DB == nil {
		resp.Database = "not configured"
		api.Success(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.cfg.DB.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		api.Success(w, http.StatusServiceUnavailable, resp)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *OpsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Caches == nil {
		api.Error(w, http.StatusServiceUnavailable, "caches not configured")
		return
	}
	api.Success(w, http.StatusOK, h.cfg.Caches.Stats())
}

func (h *OpsHandler) SourceStats(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sources == nil {
		api.Error(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}
	stats, err := h.cfg.Sources.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}

func (h *OpsHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sync == nil {
		api.Error(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}
	if h.cfg.Root == "" {
		api.Error(w, http.StatusNotFound, "no ingest path configured")
		return
	}
	middleware.TagRequest(r.Context(), "ingest_root", h.cfg.Root)
	status, err := h.cfg.Sync.SyncStatus(r.Context(), h.cfg.Root)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, status)
}

type FeedbackRequest struct {
	Query      string `json:"query"`
	SourceFile string `json:"source_file"`
	Helpful    *bool  `json:"helpful"`
}

func (h *OpsHandler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Feedback == nil {
		api.Error(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || req.SourceFile == "" || req.Helpful == nil {
		api.Error(w, http.StatusBadRequest, "query, source_file and helpful are required")
		return
	}

	middleware.TagRequest(r.Context(), "source_file", req.SourceFile)
	middleware.TagRequest(r.Context(), "feedback.helpful", strconv.FormatBool(*req.Helpful))

	fb := &domain.SourceFeedback{
		Query:      req.Query,
		SourceFile: req.SourceFile,
		Helpful:    *req.Helpful,
	}
	if err := h.cfg.Feedback.RecordFeedback(r.Context(), fb); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, map[string]string{"id": fb.ID})
}
