package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

var studentColumns = []string{
	"id", "user_id", "name", "login_id", "email", "current_score", "final_score",
	"last_activity_at", "enrollment_date", "last_synced",
}

// StudentRepository persists Canvas students.
type StudentRepository struct {
	table table
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository() *StudentRepository {
	return &StudentRepository{table: newTable("students", models.FieldID, []string{models.FieldID}, studentColumns...)}
}

// FindByIDs loads students keyed by id.
func (r *StudentRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]models.Student, error) {
	return r.find(ctx, exec, models.FieldID, ids, func(s models.Student) int64 { return s.ID })
}

// FindByUserIDs loads students keyed by Canvas user id.
func (r *StudentRepository) FindByUserIDs(ctx context.Context, exec sqlx.ExtContext, userIDs []int64) (map[int64]models.Student, error) {
	return r.find(ctx, exec, models.FieldUserID, userIDs, func(s models.Student) int64 { return s.UserID })
}

func (r *StudentRepository) find(ctx context.Context, exec sqlx.ExtContext, column string, ids []int64, keyOf func(models.Student) int64) (map[int64]models.Student, error) {
	found := make(map[int64]models.Student, len(ids))
	for _, part := range chunk(uniqueInt64(ids), LookupChunkSize) {
		var rows []models.Student
		stmt := builder.Select(studentColumns...).From("students").Where(sq.Eq{column: part})
		if err := selectStmt(ctx, exec, &rows, stmt, "find students"); err != nil {
			return nil, err
		}
		for _, s := range rows {
			found[keyOf(s)] = s
		}
	}
	return found, nil
}

// ExistingIDs reports which student ids are persisted.
func (r *StudentRepository) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]bool, error) {
	return r.table.existingIDs(ctx, exec, models.FieldID, ids)
}

// ExistingUserIDs reports which Canvas user ids belong to a persisted student.
func (r *StudentRepository) ExistingUserIDs(ctx context.Context, exec sqlx.ExtContext, userIDs []int64) (map[int64]bool, error) {
	return r.table.existingIDs(ctx, exec, models.FieldUserID, userIDs)
}

// Insert creates a student from normalized fields.
func (r *StudentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	return r.table.insert(ctx, exec, fields, syncedAt)
}

// Update writes the changed columns of student id.
func (r *StudentRepository) Update(ctx context.Context, exec sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error {
	return r.table.update(ctx, exec, id, changes, syncedAt)
}

// TouchLastSynced stamps last_synced on unchanged students.
func (r *StudentRepository) TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error) {
	return r.table.touch(ctx, exec, toInterfaces(ids), syncedAt)
}
