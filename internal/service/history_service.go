package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/repository"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

type historyRepository interface {
	InsertGradeHistory(ctx context.Context, exec sqlx.ExtContext, row *models.GradeHistory) error
	InsertAssignmentScore(ctx context.Context, exec sqlx.ExtContext, row *models.AssignmentScoreHistory) error
}

type historyFailureCounter interface {
	RecordHistoryFailure(entity string)
}

// HistoryRecorder appends grade and score snapshots after tracked fields change.
// Write failures are logged and counted, never returned.
type HistoryRecorder struct {
	repo    historyRepository
	metrics historyFailureCounter
	logger  *zap.Logger
	now     func() time.Time
}

// NewHistoryRecorder constructs a HistoryRecorder.
func NewHistoryRecorder(repo historyRepository, metrics historyFailureCounter, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordIfChanged appends one row when changed touches a tracked field of entry's entity.
// The write runs in its own savepoint so a failure leaves the surrounding transaction usable.
func (h *HistoryRecorder) RecordIfChanged(ctx context.Context, scope repository.Scope, entry models.HistoryEntry, changed models.Fields) bool {
	desc, ok := models.Descriptor(entry.Entity)
	if !ok || !touchesTracked(desc, changed) {
		return false
	}

	sp, err := scope.Savepoint(ctx)
	if err != nil {
		h.fail(entry, err)
		return false
	}
	if err := h.write(ctx, sp.Exec(), entry); err != nil {
		if rbErr := sp.Rollback(); rbErr != nil {
			h.logger.Warn("history savepoint rollback failed", zap.Error(rbErr))
		}
		h.fail(entry, err)
		return false
	}
	if err := sp.Commit(); err != nil {
		h.fail(entry, err)
		return false
	}
	return true
}

func (h *HistoryRecorder) write(ctx context.Context, exec sqlx.ExtContext, entry models.HistoryEntry) error {
	recordedAt := h.now()
	v := entry.Values
	switch entry.Entity {
	case models.EntityAssignment:
		return h.repo.InsertAssignmentScore(ctx, exec, &models.AssignmentScoreHistory{
			AssignmentID:   entry.EntityID,
			CourseID:       derefInt64(entry.CourseID),
			PointsPossible: floatField(v, "points_possible"),
			RecordedAt:     recordedAt,
		})
	case models.EntityStudent:
		return h.repo.InsertGradeHistory(ctx, exec, &models.GradeHistory{
			StudentID:    entry.EntityID,
			CurrentScore: floatField(v, "current_score"),
			FinalScore:   floatField(v, "final_score"),
			Source:       models.HistorySourceStudent,
			RecordedAt:   recordedAt,
		})
	default:
		return h.repo.InsertGradeHistory(ctx, exec, &models.GradeHistory{
			StudentID:    entry.EntityID,
			CourseID:     entry.CourseID,
			CurrentScore: floatField(v, "current_score"),
			FinalScore:   floatField(v, "final_score"),
			CurrentGrade: stringField(v, "current_grade"),
			FinalGrade:   stringField(v, "final_grade"),
			Source:       models.HistorySourceEnrollment,
			RecordedAt:   recordedAt,
		})
	}
}

func (h *HistoryRecorder) fail(entry models.HistoryEntry, err error) {
	h.logger.Warn("history write failed",
		zap.String("entity", string(entry.Entity)),
		zap.Int64("entity_id", entry.EntityID),
		zap.Error(err),
	)
	if h.metrics != nil {
		h.metrics.RecordHistoryFailure(string(entry.Entity))
	}
}

func touchesTracked(desc models.EntityDescriptor, changed models.Fields) bool {
	for field := range changed {
		if desc.IsTracked(field) {
			return true
		}
	}
	return false
}

func floatField(f models.Fields, key string) *float64 {
	v, ok := asFloat(f[key])
	if !ok {
		return nil
	}
	return &v
}

func stringField(f models.Fields, key string) *string {
	v, ok := f[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

type gradeHistoryLister interface {
	ListGradeHistory(ctx context.Context, exec sqlx.ExtContext, studentID int64) ([]models.GradeHistory, error)
}

// GradeHistoryService reads recorded grade history.
type GradeHistoryService struct {
	repo gradeHistoryLister
	exec sqlx.ExtContext
}

// NewGradeHistoryService constructs a GradeHistoryService reading through exec.
func NewGradeHistoryService(repo gradeHistoryLister, exec sqlx.ExtContext) *GradeHistoryService {
	return &GradeHistoryService{repo: repo, exec: exec}
}

// ForStudent returns every snapshot of studentID, newest first.
func (s *GradeHistoryService) ForStudent(ctx context.Context, studentID int64) ([]models.GradeHistory, error) {
	if studentID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id must be positive")
	}
	rows, err := s.repo.ListGradeHistory(ctx, s.exec, studentID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.GradeHistory{}
	}
	return rows, nil
}
