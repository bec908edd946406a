package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

// HistoryRepository appends grade and assignment score snapshots.
// It exposes no update or delete path.
type HistoryRepository struct{}

// NewHistoryRepository constructs a HistoryRepository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

// InsertGradeHistory appends one grade snapshot.
func (r *HistoryRepository) InsertGradeHistory(ctx context.Context, exec sqlx.ExtContext, row *models.GradeHistory) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	stmt := builder.Insert("grade_history").
		Columns("id", "student_id", "course_id", "current_score", "final_score", "current_grade", "final_grade", "source", "recorded_at").
		Values(row.ID, row.StudentID, row.CourseID, row.CurrentScore, row.FinalScore, row.CurrentGrade, row.FinalGrade, row.Source, row.RecordedAt)
	_, err := execStmt(ctx, exec, stmt, "insert grade history")
	return err
}

// InsertAssignmentScore appends one assignment score snapshot.
func (r *HistoryRepository) InsertAssignmentScore(ctx context.Context, exec sqlx.ExtContext, row *models.AssignmentScoreHistory) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	stmt := builder.Insert("assignment_score_history").
		Columns("id", "assignment_id", "course_id", "points_possible", "recorded_at").
		Values(row.ID, row.AssignmentID, row.CourseID, row.PointsPossible, row.RecordedAt)
	_, err := execStmt(ctx, exec, stmt, "insert assignment score history")
	return err
}

// ListGradeHistory returns a student's snapshots newest first.
func (r *HistoryRepository) ListGradeHistory(ctx context.Context, exec sqlx.ExtContext, studentID int64) ([]models.GradeHistory, error) {
	var rows []models.GradeHistory
	stmt := builder.Select("id", "student_id", "course_id", "current_score", "final_score", "current_grade", "final_grade", "source", "recorded_at").
		From("grade_history").
		Where("student_id = ?", studentID).
		OrderBy("recorded_at DESC", "id DESC")
	if err := selectStmt(ctx, exec, &rows, stmt, "list grade history"); err != nil {
		return nil, err
	}
	return rows, nil
}
