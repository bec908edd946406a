package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

func TestCourseRepositoryFindByIDsChunks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository()

	ids := make([]int64, 0, 150)
	for i := int64(1); i <= 150; i++ {
		ids = append(ids, i)
	}
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, name, .* FROM courses WHERE id IN \((\?,){99}\?\)`).
		WillReturnRows(sqlmock.NewRows(courseColumns).
			AddRow(1, "Intro CS", nil, "available", nil, nil, nil, nil, 0, 0, 0, now))
	mock.ExpectQuery(`SELECT id, name, .* FROM courses WHERE id IN \((\?,){49}\?\)`).
		WillReturnRows(sqlmock.NewRows(courseColumns).
			AddRow(150, "Algebra", "ALG", nil, nil, nil, nil, nil, 3, 2, 1, now))

	found, err := repo.FindByIDs(context.Background(), db, ids)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Intro CS", found[1].Name)
	require.NotNil(t, found[150].CourseCode)
	assert.Equal(t, "ALG", *found[150].CourseCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryInsertWritesSuppliedColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO courses (id,last_synced,name) VALUES (?,?,?)")).
		WithArgs(int64(101), sqlmock.AnyArg(), "Intro CS").
		WillReturnResult(sqlmock.NewResult(0, 1))

	fields := models.Fields{models.FieldID: int64(101), "name": "Intro CS", models.FieldUserID: int64(9)}
	require.NoError(t, repo.Insert(context.Background(), db, fields, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUpdateNeverWritesIdentity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET last_synced = ?, name = ? WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), "Renamed", int64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET last_synced = ?, name = ? WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), "Ghost", int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changes := models.Fields{"name": "Renamed", models.FieldID: int64(555)}
	require.NoError(t, repo.Update(context.Background(), db, 101, changes, time.Now()))

	err := repo.Update(context.Background(), db, 999, models.Fields{"name": "Ghost"}, time.Now())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryTouchLastSynced(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET last_synced = ? WHERE id IN (?,?,?)")).
		WithArgs(sqlmock.AnyArg(), int64(1), int64(2), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.TouchLastSynced(context.Background(), db, []int64{1, 2, 3}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryComputeCounters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id, COUNT(*) AS total FROM enrollments WHERE (course_id IN (?,?) AND enrollment_state IN (?)) GROUP BY course_id")).
		WithArgs(int64(101), int64(102), "active").
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "total"}).AddRow(101, 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id, COUNT(*) AS total, COUNT(DISTINCT module_id) AS modules FROM assignments WHERE course_id IN (?,?) GROUP BY course_id")).
		WithArgs(int64(101), int64(102)).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "total", "modules"}).AddRow(102, 4, 2))

	counters, err := repo.ComputeCounters(context.Background(), db, []int64{101, 102},
		&LifecycleFilter{Field: "enrollment_state", States: []string{"active"}})
	require.NoError(t, err)
	assert.Equal(t, models.CourseCounters{CourseID: 101, TotalStudents: 2}, counters[101])
	assert.Equal(t, models.CourseCounters{CourseID: 102, TotalAssignments: 4, TotalModules: 2}, counters[102])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUpdateCounters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET total_assignments = ?, total_modules = ?, total_students = ? WHERE id = ?")).
		WithArgs(int64(4), int64(2), int64(1), int64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateCounters(context.Background(), db, models.CourseCounters{CourseID: 101, TotalStudents: 1, TotalAssignments: 4, TotalModules: 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
