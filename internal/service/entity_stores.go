package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/repository"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

type courseRepository interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]models.Course, error)
	ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]bool, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error
	Update(ctx context.Context, exec sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error
	TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error)
	ComputeCounters(ctx context.Context, exec sqlx.ExtContext, courseIDs []int64, enrollments *repository.LifecycleFilter) (map[int64]models.CourseCounters, error)
	UpdateCounters(ctx context.Context, exec sqlx.ExtContext, counters models.CourseCounters) error
}

type studentRepository interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]models.Student, error)
	FindByUserIDs(ctx context.Context, exec sqlx.ExtContext, userIDs []int64) (map[int64]models.Student, error)
	ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]bool, error)
	ExistingUserIDs(ctx context.Context, exec sqlx.ExtContext, userIDs []int64) (map[int64]bool, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error
	Update(ctx context.Context, exec sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error
	TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error)
}

type assignmentRepository interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]models.Assignment, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error
	Update(ctx context.Context, exec sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error
	TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error)
}

type enrollmentRepository interface {
	FindByPairs(ctx context.Context, exec sqlx.ExtContext, pairs []repository.EnrollmentPair) (map[string]models.Enrollment, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, fields models.Fields, syncedAt time.Time) (string, error)
	Update(ctx context.Context, exec sqlx.ExtContext, id string, changes models.Fields, syncedAt time.Time) error
	TouchLastSynced(ctx context.Context, exec sqlx.ExtContext, ids []string, syncedAt time.Time) (int64, error)
}

// NewCourseOperations wires course upserts.
func NewCourseOperations(repo courseRepository, detector *ChangeDetector, history historyRecorder, logger *zap.Logger) *EntityOperations {
	return newEntityOperations(&courseStore{repo: repo}, detector, history, logger)
}

// NewStudentOperations wires student upserts.
func NewStudentOperations(repo studentRepository, detector *ChangeDetector, history historyRecorder, logger *zap.Logger) *EntityOperations {
	return newEntityOperations(&studentStore{repo: repo}, detector, history, logger)
}

// NewAssignmentOperations wires assignment upserts; courses are checked as parents.
func NewAssignmentOperations(repo assignmentRepository, courses courseRepository, detector *ChangeDetector, history historyRecorder, logger *zap.Logger) *EntityOperations {
	return newEntityOperations(&assignmentStore{repo: repo, courses: courses}, detector, history, logger)
}

// NewEnrollmentOperations wires enrollment upserts; students and courses are checked as parents.
func NewEnrollmentOperations(repo enrollmentRepository, students studentRepository, courses courseRepository, detector *ChangeDetector, history historyRecorder, logger *zap.Logger) *EntityOperations {
	return newEntityOperations(&enrollmentStore{repo: repo, students: students, courses: courses}, detector, history, logger)
}

type courseStore struct {
	repo courseRepository
}

func (s *courseStore) descriptor() models.EntityDescriptor {
	return models.MustDescriptor(models.EntityCourse)
}

func (s *courseStore) load(ctx context.Context, exec sqlx.ExtContext, records []models.Record) (*loadedState, error) {
	state := newLoadedState()
	found, err := s.repo.FindByIDs(ctx, exec, collectInt64(records, models.FieldID))
	if err != nil {
		return nil, err
	}
	for id, c := range found {
		state.existing[models.IDKey(id)] = c.Fields()
	}
	return state, nil
}

func (s *courseStore) resolve(*models.Record, *loadedState) error { return nil }

func (s *courseStore) key(rec models.Record) string {
	id, _ := rec.Fields.Int64(models.FieldID)
	return models.IDKey(id)
}

func (s *courseStore) insert(ctx context.Context, exec sqlx.ExtContext, rec models.Record, _ *loadedState) (models.Fields, error) {
	if err := s.repo.Insert(ctx, exec, rec.Fields, rec.SyncedAt); err != nil {
		return nil, err
	}
	return persistedFields(rec), nil
}

func (s *courseStore) update(ctx context.Context, exec sqlx.ExtContext, existing, changes models.Fields, syncedAt time.Time) error {
	id, _ := existing.Int64(models.FieldID)
	return s.repo.Update(ctx, exec, id, changes, syncedAt)
}

func (s *courseStore) touch(ctx context.Context, exec sqlx.ExtContext, rows []models.Fields, syncedAt time.Time) error {
	_, err := s.repo.TouchLastSynced(ctx, exec, int64Column(rows, models.FieldID), syncedAt)
	return err
}

func (s *courseStore) historyEntry(persisted models.Fields) models.HistoryEntry {
	id, _ := persisted.Int64(models.FieldID)
	return models.HistoryEntry{Entity: models.EntityCourse, EntityID: id, Values: persisted}
}

func (s *courseStore) courseOf(fields models.Fields) (int64, bool) {
	return fields.Int64(models.FieldID)
}

type studentStore struct {
	repo studentRepository
}

func (s *studentStore) descriptor() models.EntityDescriptor {
	return models.MustDescriptor(models.EntityStudent)
}

func (s *studentStore) load(ctx context.Context, exec sqlx.ExtContext, records []models.Record) (*loadedState, error) {
	state := newLoadedState()
	found, err := s.repo.FindByIDs(ctx, exec, collectInt64(records, models.FieldID))
	if err != nil {
		return nil, err
	}
	for id, st := range found {
		state.existing[models.IDKey(id)] = st.Fields()
	}
	byUser, err := s.repo.FindByUserIDs(ctx, exec, collectInt64(records, models.FieldUserID))
	if err != nil {
		return nil, err
	}
	for userID, st := range byUser {
		state.userStudents[userID] = st.ID
	}
	return state, nil
}

// resolve rejects a record whose user id already belongs to another student.
func (s *studentStore) resolve(rec *models.Record, state *loadedState) error {
	id, _ := rec.Fields.Int64(models.FieldID)
	userID, ok := rec.Fields.Int64(models.FieldUserID)
	if !ok {
		return nil
	}
	if owner, taken := state.userStudents[userID]; taken && owner != id {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user_id %d already belongs to student %d", userID, owner))
	}
	return nil
}

func (s *studentStore) key(rec models.Record) string {
	id, _ := rec.Fields.Int64(models.FieldID)
	return models.IDKey(id)
}

func (s *studentStore) insert(ctx context.Context, exec sqlx.ExtContext, rec models.Record, state *loadedState) (models.Fields, error) {
	if err := s.repo.Insert(ctx, exec, rec.Fields, rec.SyncedAt); err != nil {
		return nil, err
	}
	id, _ := rec.Fields.Int64(models.FieldID)
	userID, _ := rec.Fields.Int64(models.FieldUserID)
	state.userStudents[userID] = id
	return persistedFields(rec), nil
}

func (s *studentStore) update(ctx context.Context, exec sqlx.ExtContext, existing, changes models.Fields, syncedAt time.Time) error {
	id, _ := existing.Int64(models.FieldID)
	return s.repo.Update(ctx, exec, id, changes, syncedAt)
}

func (s *studentStore) touch(ctx context.Context, exec sqlx.ExtContext, rows []models.Fields, syncedAt time.Time) error {
	_, err := s.repo.TouchLastSynced(ctx, exec, int64Column(rows, models.FieldID), syncedAt)
	return err
}

func (s *studentStore) historyEntry(persisted models.Fields) models.HistoryEntry {
	id, _ := persisted.Int64(models.FieldID)
	return models.HistoryEntry{Entity: models.EntityStudent, EntityID: id, Values: persisted}
}

func (s *studentStore) courseOf(models.Fields) (int64, bool) { return 0, false }

type assignmentStore struct {
	repo    assignmentRepository
	courses courseRepository
}

func (s *assignmentStore) descriptor() models.EntityDescriptor {
	return models.MustDescriptor(models.EntityAssignment)
}

func (s *assignmentStore) load(ctx context.Context, exec sqlx.ExtContext, records []models.Record) (*loadedState, error) {
	state := newLoadedState()
	found, err := s.repo.FindByIDs(ctx, exec, collectInt64(records, models.FieldID))
	if err != nil {
		return nil, err
	}
	for id, a := range found {
		state.existing[models.IDKey(id)] = a.Fields()
	}
	courses, err := s.courses.ExistingIDs(ctx, exec, collectInt64(records, models.FieldCourseID))
	if err != nil {
		return nil, err
	}
	state.parents[models.EntityCourse] = courses
	return state, nil
}

func (s *assignmentStore) resolve(rec *models.Record, state *loadedState) error {
	courseID, _ := rec.Fields.Int64(models.FieldCourseID)
	if !state.parents[models.EntityCourse][courseID] {
		return relationshipError("assignment %s references missing course %d", rec.Identity(), courseID)
	}
	return nil
}

func (s *assignmentStore) key(rec models.Record) string {
	id, _ := rec.Fields.Int64(models.FieldID)
	return models.IDKey(id)
}

func (s *assignmentStore) insert(ctx context.Context, exec sqlx.ExtContext, rec models.Record, _ *loadedState) (models.Fields, error) {
	if err := s.repo.Insert(ctx, exec, rec.Fields, rec.SyncedAt); err != nil {
		return nil, err
	}
	return persistedFields(rec), nil
}

func (s *assignmentStore) update(ctx context.Context, exec sqlx.ExtContext, existing, changes models.Fields, syncedAt time.Time) error {
	id, _ := existing.Int64(models.FieldID)
	return s.repo.Update(ctx, exec, id, changes, syncedAt)
}

func (s *assignmentStore) touch(ctx context.Context, exec sqlx.ExtContext, rows []models.Fields, syncedAt time.Time) error {
	_, err := s.repo.TouchLastSynced(ctx, exec, int64Column(rows, models.FieldID), syncedAt)
	return err
}

func (s *assignmentStore) historyEntry(persisted models.Fields) models.HistoryEntry {
	id, _ := persisted.Int64(models.FieldID)
	entry := models.HistoryEntry{Entity: models.EntityAssignment, EntityID: id, Values: persisted}
	if courseID, ok := persisted.Int64(models.FieldCourseID); ok {
		entry.CourseID = &courseID
	}
	return entry
}

func (s *assignmentStore) courseOf(fields models.Fields) (int64, bool) {
	return fields.Int64(models.FieldCourseID)
}

type enrollmentStore struct {
	repo     enrollmentRepository
	students studentRepository
	courses  courseRepository
}

func (s *enrollmentStore) descriptor() models.EntityDescriptor {
	return models.MustDescriptor(models.EntityEnrollment)
}

func (s *enrollmentStore) load(ctx context.Context, exec sqlx.ExtContext, records []models.Record) (*loadedState, error) {
	state := newLoadedState()

	var userIDs []int64
	for _, rec := range records {
		if rec.Fields.Has(models.FieldStudentID) {
			continue
		}
		if userID, ok := rec.Fields.Int64(models.FieldUserID); ok {
			userIDs = append(userIDs, userID)
		}
	}
	if len(userIDs) > 0 {
		byUser, err := s.students.FindByUserIDs(ctx, exec, userIDs)
		if err != nil {
			return nil, err
		}
		for userID, st := range byUser {
			state.userStudents[userID] = st.ID
		}
	}

	var studentIDs []int64
	var pairs []repository.EnrollmentPair
	for _, rec := range records {
		studentID, ok := s.studentOf(rec, state)
		if !ok {
			continue
		}
		studentIDs = append(studentIDs, studentID)
		courseID, _ := rec.Fields.Int64(models.FieldCourseID)
		pairs = append(pairs, repository.EnrollmentPair{StudentID: studentID, CourseID: courseID})
	}

	students, err := s.students.ExistingIDs(ctx, exec, studentIDs)
	if err != nil {
		return nil, err
	}
	courses, err := s.courses.ExistingIDs(ctx, exec, collectInt64(records, models.FieldCourseID))
	if err != nil {
		return nil, err
	}
	state.parents[models.EntityStudent] = students
	state.parents[models.EntityCourse] = courses

	found, err := s.repo.FindByPairs(ctx, exec, pairs)
	if err != nil {
		return nil, err
	}
	for key, e := range found {
		state.existing[key] = e.Fields()
	}
	return state, nil
}

func (s *enrollmentStore) studentOf(rec models.Record, state *loadedState) (int64, bool) {
	if id, ok := rec.Fields.Int64(models.FieldStudentID); ok {
		return id, true
	}
	userID, ok := rec.Fields.Int64(models.FieldUserID)
	if !ok {
		return 0, false
	}
	id, ok := state.userStudents[userID]
	return id, ok
}

// resolve pins the student id and checks both parents exist.
func (s *enrollmentStore) resolve(rec *models.Record, state *loadedState) error {
	courseID, _ := rec.Fields.Int64(models.FieldCourseID)
	studentID, ok := s.studentOf(*rec, state)
	if !ok {
		userID, _ := rec.Fields.Int64(models.FieldUserID)
		return relationshipError("enrollment %s references missing student with user_id %d", rec.Identity(), userID)
	}
	if !state.parents[models.EntityStudent][studentID] {
		return relationshipError("enrollment %s references missing student %d", rec.Identity(), studentID)
	}
	if !state.parents[models.EntityCourse][courseID] {
		return relationshipError("enrollment %s references missing course %d", rec.Identity(), courseID)
	}
	rec.Fields[models.FieldStudentID] = studentID
	delete(rec.Fields, models.FieldUserID)
	return nil
}

func (s *enrollmentStore) key(rec models.Record) string {
	studentID, _ := rec.Fields.Int64(models.FieldStudentID)
	courseID, _ := rec.Fields.Int64(models.FieldCourseID)
	return models.EnrollmentKey(studentID, courseID)
}

func (s *enrollmentStore) insert(ctx context.Context, exec sqlx.ExtContext, rec models.Record, _ *loadedState) (models.Fields, error) {
	id, err := s.repo.Insert(ctx, exec, rec.Fields, rec.SyncedAt)
	if err != nil {
		return nil, err
	}
	persisted := persistedFields(rec)
	persisted[models.FieldID] = id
	return persisted, nil
}

func (s *enrollmentStore) update(ctx context.Context, exec sqlx.ExtContext, existing, changes models.Fields, syncedAt time.Time) error {
	id, _ := existing.String(models.FieldID)
	return s.repo.Update(ctx, exec, id, changes, syncedAt)
}

func (s *enrollmentStore) touch(ctx context.Context, exec sqlx.ExtContext, rows []models.Fields, syncedAt time.Time) error {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row.String(models.FieldID); ok {
			ids = append(ids, id)
		}
	}
	_, err := s.repo.TouchLastSynced(ctx, exec, ids, syncedAt)
	return err
}

func (s *enrollmentStore) historyEntry(persisted models.Fields) models.HistoryEntry {
	studentID, _ := persisted.Int64(models.FieldStudentID)
	entry := models.HistoryEntry{Entity: models.EntityEnrollment, EntityID: studentID, Values: persisted}
	if courseID, ok := persisted.Int64(models.FieldCourseID); ok {
		entry.CourseID = &courseID
	}
	return entry
}

func (s *enrollmentStore) courseOf(fields models.Fields) (int64, bool) {
	return fields.Int64(models.FieldCourseID)
}

func persistedFields(rec models.Record) models.Fields {
	out := rec.Fields.Clone()
	out[models.FieldLastSynced] = rec.SyncedAt
	return out
}

func collectInt64(records []models.Record, field string) []int64 {
	out := make([]int64, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Fields.Int64(field); ok {
			out = append(out, v)
		}
	}
	return out
}

func int64Column(rows []models.Fields, field string) []int64 {
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.Int64(field); ok {
			out = append(out, v)
		}
	}
	return out
}
