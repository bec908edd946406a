package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/dto"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/middleware/requestid"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/response"
)

type syncService interface {
	Execute(ctx context.Context, batch models.SyncBatch, mode models.SyncMode) (*models.SyncResult, error)
	ValidateSyncIntegrity(ctx context.Context, batch models.SyncBatch) ([]models.IntegrityViolation, error)
}

type syncResultReader interface {
	GetResult(ctx context.Context, runID string) (*models.SyncResult, error)
	Latest(ctx context.Context) (*models.SyncResult, error)
}

type gradeHistoryReader interface {
	ForStudent(ctx context.Context, studentID int64) ([]models.GradeHistory, error)
}

// SyncHandler exposes the reconciliation core over HTTP.
type SyncHandler struct {
	sync    syncService
	results syncResultReader
	history gradeHistoryReader
	logger  *zap.Logger
}

// NewSyncHandler constructs the handler. results may be nil when result caching is disabled.
func NewSyncHandler(sync syncService, results syncResultReader, history gradeHistoryReader, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{sync: sync, results: results, history: history, logger: logger}
}

// Sync runs one batch. Committed runs answer 200, runs with record failures 207,
// rolled back runs 409 with the SyncResult. Failures before any write use the error's own status.
func (h *SyncHandler) Sync(c *gin.Context) {
	var query dto.SyncQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "mode must be full or incremental"))
		return
	}
	batch, ok := h.bindBatch(c)
	if !ok {
		return
	}

	result, err := h.sync.Execute(c.Request.Context(), batch, query.SyncMode())
	meta := map[string]interface{}{"request_id": requestid.Value(c)}
	switch {
	case err != nil && errors.Is(err, appErrors.ErrTransactionFailure):
		h.logger.Warn("sync request rolled back", zap.String("request_id", requestid.Value(c)), zap.Error(err))
		response.ErrorWithData(c, http.StatusConflict, err, result)
	case err != nil:
		h.logger.Error("sync request failed", zap.String("request_id", requestid.Value(c)), zap.Error(err))
		response.Error(c, err)
	case result.PartialSuccess:
		response.JSON(c, http.StatusMultiStatus, result, meta)
	default:
		response.JSON(c, http.StatusOK, result, meta)
	}
}

// Validate reports integrity violations without writing.
func (h *SyncHandler) Validate(c *gin.Context) {
	batch, ok := h.bindBatch(c)
	if !ok {
		return
	}
	violations, err := h.sync.ValidateSyncIntegrity(c.Request.Context(), batch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ValidationResponse{Valid: len(violations) == 0, Violations: violations})
}

// Run returns a published run result.
func (h *SyncHandler) Run(c *gin.Context) {
	if h.results == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "result cache disabled"))
		return
	}
	result, err := h.results.GetResult(c.Request.Context(), c.Param("id"))
	h.respondResult(c, result, err)
}

// Latest returns the most recently published run result.
func (h *SyncHandler) Latest(c *gin.Context) {
	if h.results == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "result cache disabled"))
		return
	}
	result, err := h.results.Latest(c.Request.Context())
	h.respondResult(c, result, err)
}

func (h *SyncHandler) respondResult(c *gin.Context, result *models.SyncResult, err error) {
	if errors.Is(err, appErrors.ErrCacheMiss) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "sync run not found"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// GradeHistory lists a student's recorded grade snapshots.
func (h *SyncHandler) GradeHistory(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student id must be an integer"))
		return
	}
	entries, err := h.history.ForStudent(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.GradeHistoryResponse{StudentID: studentID, Entries: entries})
}

func (h *SyncHandler) bindBatch(c *gin.Context) (models.SyncBatch, bool) {
	var req dto.SyncRequest
	if err := bindNumbers(c, &req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sync payload"))
		return models.SyncBatch{}, false
	}
	batch := req.Batch()
	if batch.Size() == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "batch contains no records"))
		return models.SyncBatch{}, false
	}
	return batch, true
}

// bindNumbers binds a JSON body like ShouldBindJSON but keeps numbers as
// json.Number, so Canvas ids above 2^53 reach the transformers intact.
func bindNumbers(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil {
		return errors.New("empty request body")
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(dst)
}
