package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

var assignmentColumns = []string{
	"id", "course_id", "name", "points_possible", "assignment_type", "published",
	"module_id", "module_position", "due_at", "last_synced",
}

// AssignmentRepository persists Canvas assignments.
type AssignmentRepository struct {
	table table
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{table: newTable("assignments", models.FieldID, []string{models.FieldID, models.FieldCourseID}, assignmentColumns...)}
}

// FindByIDs loads assignments keyed by id.
func (r *AssignmentRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]models.Assignment, error) {
	found := make(map[int64]models.Assignment, len(ids))
	for _, part := range chunk(uniqueInt64(ids), LookupChunkSize) {
		var rows []models.Assignment
		stmt := builder.Select(assignmentColumns...).From("assignments").Where(sq.Eq{"id": part})
		if err := selectStmt(ctx, exec, &rows, stmt, "find assignments"); err != nil {
			return nil, err
		}
		for _, a := range rows {
			found[a.ID] = a
		}
	}
	return found, nil
}

// Insert creates an assignment from normalized fields.
func (r *AssignmentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	return r.table.insert(ctx, exec, fields, syncedAt)
}

// Update writes the changed columns of assignment id.
func (r *AssignmentRepository) Update(ctx context.Context, exec sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error {
	return r.table.update(ctx, exec, id, changes, syncedAt)
}

// TouchLastSynced stamps last_synced on unchanged assignments.
func (r *AssignmentRepository) TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error) {
	return r.table.touch(ctx, exec, toInterfaces(ids), syncedAt)
}
