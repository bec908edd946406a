package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

var courseColumns = []string{
	"id", "name", "course_code", "workflow_state", "start_at", "end_at", "created_at", "calendar_ics",
	"total_students", "total_assignments", "total_modules", "last_synced",
}

// LifecycleFilter narrows a count to rows whose Field is in States.
type LifecycleFilter struct {
	Field  string
	States []string
}

// CourseRepository persists Canvas courses.
type CourseRepository struct {
	table table
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository() *CourseRepository {
	return &CourseRepository{table: newTable("courses", models.FieldID, []string{models.FieldID}, courseColumns...)}
}

// FindByIDs loads the courses with the given ids keyed by id.
func (r *CourseRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]models.Course, error) {
	found := make(map[int64]models.Course, len(ids))
	for _, part := range chunk(uniqueInt64(ids), LookupChunkSize) {
		var rows []models.Course
		stmt := builder.Select(courseColumns...).From("courses").Where(sq.Eq{"id": part})
		if err := selectStmt(ctx, exec, &rows, stmt, "find courses"); err != nil {
			return nil, err
		}
		for _, c := range rows {
			found[c.ID] = c
		}
	}
	return found, nil
}

// ExistingIDs reports which ids are persisted.
func (r *CourseRepository) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]bool, error) {
	return r.table.existingIDs(ctx, exec, models.FieldID, ids)
}

// Insert creates a course from normalized fields.
func (r *CourseRepository) Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	return r.table.insert(ctx, exec, fields, syncedAt)
}

// Update writes the changed columns of course id.
func (r *CourseRepository) Update(ctx context.Context, exec sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error {
	return r.table.update(ctx, exec, id, changes, syncedAt)
}

// TouchLastSynced stamps last_synced on unchanged courses.
func (r *CourseRepository) TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error) {
	return r.table.touch(ctx, exec, toInterfaces(ids), syncedAt)
}

type courseCount struct {
	CourseID int64 `db:"course_id"`
	Total    int   `db:"total"`
	Modules  int   `db:"modules"`
}

// ComputeCounters derives student, assignment and module totals for courseIDs.
// When enrollments is non-nil only enrollments in an active state are counted.
func (r *CourseRepository) ComputeCounters(ctx context.Context, exec sqlx.ExtContext, courseIDs []int64, enrollments *LifecycleFilter) (map[int64]models.CourseCounters, error) {
	out := make(map[int64]models.CourseCounters, len(courseIDs))
	for _, id := range courseIDs {
		out[id] = models.CourseCounters{CourseID: id}
	}

	for _, part := range chunk(uniqueInt64(courseIDs), LookupChunkSize) {
		where := sq.And{sq.Eq{"course_id": part}}
		if enrollments != nil && enrollments.Field != "" {
			where = append(where, sq.Eq{enrollments.Field: enrollments.States})
		}
		var students []courseCount
		stmt := builder.Select("course_id", "COUNT(*) AS total").From("enrollments").Where(where).GroupBy("course_id")
		if err := selectStmt(ctx, exec, &students, stmt, "count enrollments"); err != nil {
			return nil, err
		}
		for _, row := range students {
			c := out[row.CourseID]
			c.TotalStudents = row.Total
			out[row.CourseID] = c
		}

		var assignments []courseCount
		stmt = builder.Select("course_id", "COUNT(*) AS total", "COUNT(DISTINCT module_id) AS modules").
			From("assignments").Where(sq.Eq{"course_id": part}).GroupBy("course_id")
		if err := selectStmt(ctx, exec, &assignments, stmt, "count assignments"); err != nil {
			return nil, err
		}
		for _, row := range assignments {
			c := out[row.CourseID]
			c.TotalAssignments = row.Total
			c.TotalModules = row.Modules
			out[row.CourseID] = c
		}
	}
	return out, nil
}

// UpdateCounters writes derived totals without touching last_synced.
func (r *CourseRepository) UpdateCounters(ctx context.Context, exec sqlx.ExtContext, counters models.CourseCounters) error {
	stmt := builder.Update("courses").SetMap(map[string]interface{}(counters.Fields())).Where(sq.Eq{"id": counters.CourseID})
	_, err := execStmt(ctx, exec, stmt, "update course counters")
	return err
}
