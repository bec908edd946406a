package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

var enrollmentColumns = []string{
	"id", "student_id", "course_id", "canvas_enrollment_id", "enrollment_state", "current_score",
	"final_score", "current_grade", "final_grade", "course_section_id", "last_synced",
}

// EnrollmentPair is the composite identity of an enrollment.
type EnrollmentPair struct {
	StudentID int64
	CourseID  int64
}

// EnrollmentRepository persists student/course enrollments.
type EnrollmentRepository struct {
	table table
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository() *EnrollmentRepository {
	immutable := []string{models.FieldID, models.FieldStudentID, models.FieldCourseID}
	return &EnrollmentRepository{table: newTable("enrollments", models.FieldID, immutable, enrollmentColumns...)}
}

// FindByPairs loads enrollments keyed by models.EnrollmentKey.
func (r *EnrollmentRepository) FindByPairs(ctx context.Context, exec sqlx.ExtContext, pairs []EnrollmentPair) (map[string]models.Enrollment, error) {
	found := make(map[string]models.Enrollment, len(pairs))
	for _, part := range chunk(uniquePairs(pairs), LookupChunkSize) {
		or := make(sq.Or, 0, len(part))
		for _, p := range part {
			or = append(or, sq.And{sq.Eq{"student_id": p.StudentID}, sq.Eq{"course_id": p.CourseID}})
		}
		var rows []models.Enrollment
		stmt := builder.Select(enrollmentColumns...).From("enrollments").Where(or)
		if err := selectStmt(ctx, exec, &rows, stmt, "find enrollments"); err != nil {
			return nil, err
		}
		for _, e := range rows {
			found[e.Key()] = e
		}
	}
	return found, nil
}

// Insert creates an enrollment and returns its generated row id.
func (r *EnrollmentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) (string, error) {
	values := fields.Clone()
	id := uuid.NewString()
	values[models.FieldID] = id
	if err := r.table.insert(ctx, exec, values, syncedAt); err != nil {
		return "", err
	}
	return id, nil
}

// Update writes the changed columns of the enrollment row id.
func (r *EnrollmentRepository) Update(ctx context.Context, exec sqlx.ExtContext, id string, changes models.Fields, syncedAt time.Time) error {
	return r.table.update(ctx, exec, id, changes, syncedAt)
}

// TouchLastSynced stamps last_synced on unchanged enrollments.
func (r *EnrollmentRepository) TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []string, syncedAt time.Time) (int64, error) {
	return r.table.touch(ctx, exec, toInterfaces(ids), syncedAt)
}

func uniquePairs(pairs []EnrollmentPair) []EnrollmentPair {
	seen := make(map[EnrollmentPair]struct{}, len(pairs))
	out := make([]EnrollmentPair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
