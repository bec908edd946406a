package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

func TestRecordIfChangedIgnoresUntrackedFields(t *testing.T) {
	db := newFakeDB()
	recorder := NewHistoryRecorder(&fakeHistoryRepo{db: db}, nil, nil)
	scope, _ := db.Begin(context.Background())

	entry := models.HistoryEntry{Entity: models.EntityStudent, EntityID: 55, Values: models.Fields{"name": "Ada"}}
	assert.False(t, recorder.RecordIfChanged(context.Background(), scope, entry, models.Fields{"name": "Ada"}))
	assert.Empty(t, db.state.grades)
}

func TestRecordIfChangedAssignmentScore(t *testing.T) {
	db := newFakeDB()
	recorder := NewHistoryRecorder(&fakeHistoryRepo{db: db}, nil, nil)
	scope, _ := db.Begin(context.Background())

	courseID := int64(101)
	entry := models.HistoryEntry{
		Entity:   models.EntityAssignment,
		EntityID: 7,
		CourseID: &courseID,
		Values:   models.Fields{"points_possible": int64(25)},
	}
	require.True(t, recorder.RecordIfChanged(context.Background(), scope, entry, models.Fields{"points_possible": int64(25)}))

	require.Len(t, db.state.scores, 1)
	assert.Equal(t, int64(7), db.state.scores[0].AssignmentID)
	assert.Equal(t, int64(101), db.state.scores[0].CourseID)
	assert.Equal(t, 25.0, *db.state.scores[0].PointsPossible)
}

func TestRecordIfChangedSwallowsFailures(t *testing.T) {
	db := newFakeDB()
	db.state.students[55] = models.Student{ID: 55, Name: "Ada"}
	db.failHistory = true
	counter := &fakeHistoryCounter{}
	recorder := NewHistoryRecorder(&fakeHistoryRepo{db: db}, counter, nil)
	scope, _ := db.Begin(context.Background())

	entry := models.HistoryEntry{Entity: models.EntityStudent, EntityID: 55, Values: models.Fields{"current_score": 70.0}}
	assert.False(t, recorder.RecordIfChanged(context.Background(), scope, entry, models.Fields{"current_score": 70.0}))

	assert.Equal(t, 1, counter.failures["students"])
	assert.Contains(t, db.state.students, int64(55), "outer scope is untouched")
	require.NoError(t, scope.Commit())
}

func TestRecordIfChangedSavepointFailure(t *testing.T) {
	db := newFakeDB()
	db.failSavepoint = true
	counter := &fakeHistoryCounter{}
	recorder := NewHistoryRecorder(&fakeHistoryRepo{db: db}, counter, nil)
	scope, _ := db.Begin(context.Background())

	entry := models.HistoryEntry{Entity: models.EntityEnrollment, EntityID: 55, Values: models.Fields{"final_grade": "C"}}
	assert.False(t, recorder.RecordIfChanged(context.Background(), scope, entry, models.Fields{"final_grade": "C"}))
	assert.Equal(t, 1, counter.failures["enrollments"])
}

type fakeGradeLister struct {
	rows []models.GradeHistory
}

func (f *fakeGradeLister) ListGradeHistory(_ context.Context, _ sqlx.ExtContext, studentID int64) ([]models.GradeHistory, error) {
	var out []models.GradeHistory
	for _, row := range f.rows {
		if row.StudentID == studentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestGradeHistoryServiceForStudent(t *testing.T) {
	newest := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	svc := NewGradeHistoryService(&fakeGradeLister{rows: []models.GradeHistory{
		{ID: "c", StudentID: 55, RecordedAt: newest},
		{ID: "b", StudentID: 56, RecordedAt: newest},
		{ID: "a", StudentID: 55, RecordedAt: newest.Add(-24 * time.Hour)},
	}}, nil)

	rows, err := svc.ForStudent(context.Background(), 55)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"c", "a"}, []string{rows[0].ID, rows[1].ID}, "repository order is kept: newest first")

	rows, err = svc.ForStudent(context.Background(), 99)
	require.NoError(t, err)
	assert.NotNil(t, rows)

	_, err = svc.ForStudent(context.Background(), 0)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
