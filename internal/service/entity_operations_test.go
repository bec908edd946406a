package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

var syncedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func record(entity models.EntityType, fields models.Fields) models.Record {
	return models.Record{Entity: entity, Fields: fields, SyncedAt: syncedAt}
}

func TestCourseUpsertLifecycle(t *testing.T) {
	db := newFakeDB()
	ops := NewCourseOperations(&fakeCourseRepo{db: db}, nil, nil, zap.NewNop())
	scope, err := db.Begin(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	out, err := ops.Upsert(ctx, scope, record(models.EntityCourse, models.Fields{"id": int64(101), "name": "Biology"}))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, "101", out.Identity)

	out, err = ops.Upsert(ctx, scope, record(models.EntityCourse, models.Fields{"id": int64(101), "name": "Biology"}))
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, out.Action)

	out, err = ops.Upsert(ctx, scope, record(models.EntityCourse, models.Fields{"id": int64(101), "name": "Biology II", "course_code": nil}))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, out.Action)
	assert.Equal(t, []string{"name"}, out.Changed, "course_code was already NULL")
	assert.Equal(t, "Biology II", db.state.courses[101].Name)
}

func TestBatchUpsertPreservesInputOrder(t *testing.T) {
	db := newFakeDB()
	db.state.courses[102] = models.Course{ID: 102, Name: "Chemistry"}
	ops := NewCourseOperations(&fakeCourseRepo{db: db}, nil, nil, nil)
	scope, _ := db.Begin(context.Background())

	out, err := ops.BatchUpsert(context.Background(), scope, []models.Record{
		record(models.EntityCourse, models.Fields{"id": int64(103), "name": "Physics"}),
		record(models.EntityCourse, models.Fields{"id": int64(102), "name": "Chemistry"}),
		record(models.EntityCourse, models.Fields{"id": int64(101), "name": "Biology"}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"103", "101"}, out.Created)
	assert.Equal(t, []string{"102"}, out.Unchanged)
	assert.Equal(t, syncedAt, db.state.courses[102].LastSynced)
	assert.ElementsMatch(t, []int64{101, 103}, out.CourseIDs)
}

func TestAssignmentUpsertRequiresCourse(t *testing.T) {
	db := newFakeDB()
	ops := NewAssignmentOperations(&fakeAssignmentRepo{db: db}, &fakeCourseRepo{db: db}, nil, nil, nil)
	scope, _ := db.Begin(context.Background())

	_, err := ops.Upsert(context.Background(), scope, record(models.EntityAssignment, models.Fields{"id": int64(1), "course_id": int64(999), "name": "Lab"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRelationship))
	assert.Empty(t, db.state.assignments)
}

func TestEnrollmentUpsertRecordsHistory(t *testing.T) {
	db := newFakeDB()
	db.state.courses[101] = models.Course{ID: 101}
	db.state.students[55] = models.Student{ID: 55, UserID: 900}
	history := NewHistoryRecorder(&fakeHistoryRepo{db: db}, nil, nil)
	ops := NewEnrollmentOperations(&fakeEnrollmentRepo{db: db}, &fakeStudentRepo{db: db}, &fakeCourseRepo{db: db}, nil, history, nil)
	scope, _ := db.Begin(context.Background())
	ctx := context.Background()

	out, err := ops.Upsert(ctx, scope, record(models.EntityEnrollment, models.Fields{"user_id": int64(900), "course_id": int64(101), "current_grade": "B"}))
	require.NoError(t, err)
	assert.Equal(t, "55:101", out.Identity)
	assert.Empty(t, db.state.grades)

	out, err = ops.Upsert(ctx, scope, record(models.EntityEnrollment, models.Fields{"student_id": int64(55), "course_id": int64(101), "current_grade": "A"}))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, out.Action)

	require.Len(t, db.state.grades, 1)
	row := db.state.grades[0]
	assert.Equal(t, int64(55), row.StudentID)
	require.NotNil(t, row.CourseID)
	assert.Equal(t, int64(101), *row.CourseID)
	assert.Equal(t, "A", *row.CurrentGrade)
	assert.Equal(t, models.HistorySourceEnrollment, row.Source)
}

func TestBatchUpsertStopsOnStatementError(t *testing.T) {
	db := newFakeDB()
	db.failWrite["students:56"] = true
	ops := NewStudentOperations(&fakeStudentRepo{db: db}, nil, nil, nil)
	scope, _ := db.Begin(context.Background())

	out, err := ops.BatchUpsert(context.Background(), scope, []models.Record{
		record(models.EntityStudent, models.Fields{"id": int64(55), "user_id": int64(900)}),
		record(models.EntityStudent, models.Fields{"id": int64(56), "user_id": int64(901)}),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"55"}, out.Created)
}

func TestBatchUpsertHonoursCancellation(t *testing.T) {
	db := newFakeDB()
	ops := NewCourseOperations(&fakeCourseRepo{db: db}, nil, nil, nil)
	scope, _ := db.Begin(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ops.BatchUpsert(ctx, scope, []models.Record{record(models.EntityCourse, models.Fields{"id": int64(101)})})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, db.state.courses)
}
