package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/repository"
)

type fakeState struct {
	courses     map[int64]models.Course
	students    map[int64]models.Student
	assignments map[int64]models.Assignment
	enrollments map[string]models.Enrollment
	grades      []models.GradeHistory
	scores      []models.AssignmentScoreHistory
}

func newFakeState() fakeState {
	return fakeState{
		courses:     map[int64]models.Course{},
		students:    map[int64]models.Student{},
		assignments: map[int64]models.Assignment{},
		enrollments: map[string]models.Enrollment{},
	}
}

func (s fakeState) clone() fakeState {
	out := newFakeState()
	for k, v := range s.courses {
		out.courses[k] = v
	}
	for k, v := range s.students {
		out.students[k] = v
	}
	for k, v := range s.assignments {
		out.assignments[k] = v
	}
	for k, v := range s.enrollments {
		out.enrollments[k] = v
	}
	out.grades = append([]models.GradeHistory(nil), s.grades...)
	out.scores = append([]models.AssignmentScoreHistory(nil), s.scores...)
	return out
}

// fakeDB is an in-memory store with snapshot-based transactions.
type fakeDB struct {
	state fakeState

	failWrite     map[string]bool
	failHistory   bool
	failCommit    bool
	failSavepoint bool
	failCounters  bool
	failRead      bool

	begins, commits, rollbacks int
	counterUpdates             int
	enrollmentSeq              int
}

func newFakeDB() *fakeDB {
	return &fakeDB{state: newFakeState(), failWrite: map[string]bool{}}
}

func (db *fakeDB) Begin(ctx context.Context) (repository.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.begins++
	return &fakeScope{db: db, snapshot: db.state.clone()}, nil
}

func (db *fakeDB) Reader() sqlx.ExtContext { return nil }

func (db *fakeDB) write(entity models.EntityType, key string) error {
	if db.failWrite[string(entity)+":"+key] {
		return fmt.Errorf("write %s %s: constraint violated", entity, key)
	}
	return nil
}

type fakeScope struct {
	db       *fakeDB
	snapshot fakeState
	depth    int
	closed   bool
}

func (s *fakeScope) Exec() sqlx.ExtContext { return nil }

func (s *fakeScope) Savepoint(context.Context) (repository.Scope, error) {
	if s.closed {
		return nil, repository.ErrScopeClosed
	}
	if s.db.failSavepoint {
		return nil, errors.New("savepoint refused")
	}
	return &fakeScope{db: s.db, snapshot: s.db.state.clone(), depth: s.depth + 1}, nil
}

func (s *fakeScope) Commit() error {
	if s.closed {
		return repository.ErrScopeClosed
	}
	s.closed = true
	if s.depth > 0 {
		return nil
	}
	if s.db.failCommit {
		s.db.state = s.snapshot
		return errors.New("commit: connection reset")
	}
	s.db.commits++
	return nil
}

func (s *fakeScope) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.db.state = s.snapshot
	if s.depth == 0 {
		s.db.rollbacks++
	}
	return nil
}

func withSynced(fields models.Fields, syncedAt time.Time) models.Fields {
	out := fields.Clone()
	out[models.FieldLastSynced] = syncedAt
	return out
}

func mergeFields(base, changes models.Fields, syncedAt time.Time) models.Fields {
	out := base.Clone()
	for k, v := range changes {
		out[k] = v
	}
	out[models.FieldLastSynced] = syncedAt
	return out
}

func strOf(f models.Fields, k string) string {
	v, _ := f[k].(string)
	return v
}

func strPtr(f models.Fields, k string) *string {
	if v, ok := f[k].(string); ok {
		return &v
	}
	return nil
}

func floatPtr(f models.Fields, k string) *float64 {
	if v, ok := asFloat(f[k]); ok {
		return &v
	}
	return nil
}

func int64Ptr(f models.Fields, k string) *int64 {
	if v, ok := f.Int64(k); ok {
		return &v
	}
	return nil
}

func timePtr(f models.Fields, k string) *time.Time {
	if v, ok := f[k].(time.Time); ok {
		return &v
	}
	return nil
}

func timeOf(f models.Fields, k string) time.Time {
	v, _ := f[k].(time.Time)
	return v
}

func courseFrom(f models.Fields) models.Course {
	id, _ := f.Int64(models.FieldID)
	students, _ := f.Int64("total_students")
	assignments, _ := f.Int64("total_assignments")
	modules, _ := f.Int64("total_modules")
	return models.Course{
		ID:               id,
		Name:             strOf(f, "name"),
		CourseCode:       strPtr(f, "course_code"),
		WorkflowState:    strPtr(f, "workflow_state"),
		StartAt:          timePtr(f, "start_at"),
		EndAt:            timePtr(f, "end_at"),
		CreatedAt:        timePtr(f, "created_at"),
		CalendarICS:      strPtr(f, "calendar_ics"),
		TotalStudents:    int(students),
		TotalAssignments: int(assignments),
		TotalModules:     int(modules),
		LastSynced:       timeOf(f, models.FieldLastSynced),
	}
}

func studentFrom(f models.Fields) models.Student {
	id, _ := f.Int64(models.FieldID)
	userID, _ := f.Int64(models.FieldUserID)
	return models.Student{
		ID:             id,
		UserID:         userID,
		Name:           strOf(f, "name"),
		LoginID:        strPtr(f, "login_id"),
		Email:          strPtr(f, "email"),
		CurrentScore:   floatPtr(f, "current_score"),
		FinalScore:     floatPtr(f, "final_score"),
		LastActivityAt: timePtr(f, "last_activity_at"),
		EnrollmentDate: timePtr(f, "enrollment_date"),
		LastSynced:     timeOf(f, models.FieldLastSynced),
	}
}

func assignmentFrom(f models.Fields) models.Assignment {
	id, _ := f.Int64(models.FieldID)
	courseID, _ := f.Int64(models.FieldCourseID)
	published, _ := f["published"].(bool)
	return models.Assignment{
		ID:             id,
		CourseID:       courseID,
		Name:           strOf(f, "name"),
		PointsPossible: floatPtr(f, "points_possible"),
		AssignmentType: strPtr(f, "assignment_type"),
		Published:      published,
		ModuleID:       int64Ptr(f, "module_id"),
		ModulePosition: int64Ptr(f, "module_position"),
		DueAt:          timePtr(f, "due_at"),
		LastSynced:     timeOf(f, models.FieldLastSynced),
	}
}

func enrollmentFrom(f models.Fields) models.Enrollment {
	studentID, _ := f.Int64(models.FieldStudentID)
	courseID, _ := f.Int64(models.FieldCourseID)
	return models.Enrollment{
		ID:                 strOf(f, models.FieldID),
		StudentID:          studentID,
		CourseID:           courseID,
		CanvasEnrollmentID: int64Ptr(f, "canvas_enrollment_id"),
		EnrollmentState:    strPtr(f, "enrollment_state"),
		CurrentScore:       floatPtr(f, "current_score"),
		FinalScore:         floatPtr(f, "final_score"),
		CurrentGrade:       strPtr(f, "current_grade"),
		FinalGrade:         strPtr(f, "final_grade"),
		CourseSectionID:    int64Ptr(f, "course_section_id"),
		LastSynced:         timeOf(f, models.FieldLastSynced),
	}
}

type fakeCourseRepo struct{ db *fakeDB }

func (r *fakeCourseRepo) FindByIDs(_ context.Context, _ sqlx.ExtContext, ids []int64) (map[int64]models.Course, error) {
	out := map[int64]models.Course{}
	for _, id := range ids {
		if c, ok := r.db.state.courses[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (r *fakeCourseRepo) ExistingIDs(_ context.Context, _ sqlx.ExtContext, ids []int64) (map[int64]bool, error) {
	if r.db.failRead {
		return nil, errors.New("select courses: connection refused")
	}
	out := map[int64]bool{}
	for _, id := range ids {
		if _, ok := r.db.state.courses[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r *fakeCourseRepo) Insert(_ context.Context, _ sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	id, _ := fields.Int64(models.FieldID)
	if err := r.db.write(models.EntityCourse, models.IDKey(id)); err != nil {
		return err
	}
	r.db.state.courses[id] = courseFrom(withSynced(fields, syncedAt))
	return nil
}

func (r *fakeCourseRepo) Update(_ context.Context, _ sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error {
	if err := r.db.write(models.EntityCourse, models.IDKey(id)); err != nil {
		return err
	}
	r.db.state.courses[id] = courseFrom(mergeFields(r.db.state.courses[id].Fields(), changes, syncedAt))
	return nil
}

func (r *fakeCourseRepo) TouchLastSynced(_ context.Context, _ sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if c, ok := r.db.state.courses[id]; ok {
			c.LastSynced = syncedAt
			r.db.state.courses[id] = c
			n++
		}
	}
	return n, nil
}

func (r *fakeCourseRepo) ComputeCounters(_ context.Context, _ sqlx.ExtContext, courseIDs []int64, filter *repository.LifecycleFilter) (map[int64]models.CourseCounters, error) {
	if r.db.failCounters {
		return nil, errors.New("count enrollments: relation locked")
	}
	out := map[int64]models.CourseCounters{}
	for _, id := range courseIDs {
		c := models.CourseCounters{CourseID: id}
		for _, e := range r.db.state.enrollments {
			if e.CourseID != id {
				continue
			}
			if filter != nil && (e.EnrollmentState == nil || !containsString(filter.States, *e.EnrollmentState)) {
				continue
			}
			c.TotalStudents++
		}
		modules := map[int64]bool{}
		for _, a := range r.db.state.assignments {
			if a.CourseID != id {
				continue
			}
			c.TotalAssignments++
			if a.ModuleID != nil {
				modules[*a.ModuleID] = true
			}
		}
		c.TotalModules = len(modules)
		out[id] = c
	}
	return out, nil
}

func (r *fakeCourseRepo) UpdateCounters(_ context.Context, _ sqlx.ExtContext, counters models.CourseCounters) error {
	c := r.db.state.courses[counters.CourseID]
	c.TotalStudents = counters.TotalStudents
	c.TotalAssignments = counters.TotalAssignments
	c.TotalModules = counters.TotalModules
	r.db.state.courses[counters.CourseID] = c
	r.db.counterUpdates++
	return nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type fakeStudentRepo struct{ db *fakeDB }

func (r *fakeStudentRepo) FindByIDs(_ context.Context, _ sqlx.ExtContext, ids []int64) (map[int64]models.Student, error) {
	out := map[int64]models.Student{}
	for _, id := range ids {
		if s, ok := r.db.state.students[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (r *fakeStudentRepo) FindByUserIDs(_ context.Context, _ sqlx.ExtContext, userIDs []int64) (map[int64]models.Student, error) {
	out := map[int64]models.Student{}
	for _, userID := range userIDs {
		for _, s := range r.db.state.students {
			if s.UserID == userID {
				out[userID] = s
			}
		}
	}
	return out, nil
}

func (r *fakeStudentRepo) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, ids []int64) (map[int64]bool, error) {
	found, _ := r.FindByIDs(ctx, exec, ids)
	out := map[int64]bool{}
	for id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *fakeStudentRepo) ExistingUserIDs(ctx context.Context, exec sqlx.ExtContext, userIDs []int64) (map[int64]bool, error) {
	found, _ := r.FindByUserIDs(ctx, exec, userIDs)
	out := map[int64]bool{}
	for id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *fakeStudentRepo) Insert(_ context.Context, _ sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	id, _ := fields.Int64(models.FieldID)
	if err := r.db.write(models.EntityStudent, models.IDKey(id)); err != nil {
		return err
	}
	r.db.state.students[id] = studentFrom(withSynced(fields, syncedAt))
	return nil
}

func (r *fakeStudentRepo) Update(_ context.Context, _ sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error {
	if err := r.db.write(models.EntityStudent, models.IDKey(id)); err != nil {
		return err
	}
	r.db.state.students[id] = studentFrom(mergeFields(r.db.state.students[id].Fields(), changes, syncedAt))
	return nil
}

func (r *fakeStudentRepo) TouchLastSynced(_ context.Context, _ sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if s, ok := r.db.state.students[id]; ok {
			s.LastSynced = syncedAt
			r.db.state.students[id] = s
			n++
		}
	}
	return n, nil
}

type fakeAssignmentRepo struct{ db *fakeDB }

func (r *fakeAssignmentRepo) FindByIDs(_ context.Context, _ sqlx.ExtContext, ids []int64) (map[int64]models.Assignment, error) {
	out := map[int64]models.Assignment{}
	for _, id := range ids {
		if a, ok := r.db.state.assignments[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) Insert(_ context.Context, _ sqlx.ExtContext, fields models.Fields, syncedAt time.Time) error {
	id, _ := fields.Int64(models.FieldID)
	if err := r.db.write(models.EntityAssignment, models.IDKey(id)); err != nil {
		return err
	}
	r.db.state.assignments[id] = assignmentFrom(withSynced(fields, syncedAt))
	return nil
}

func (r *fakeAssignmentRepo) Update(_ context.Context, _ sqlx.ExtContext, id int64, changes models.Fields, syncedAt time.Time) error {
	if err := r.db.write(models.EntityAssignment, models.IDKey(id)); err != nil {
		return err
	}
	r.db.state.assignments[id] = assignmentFrom(mergeFields(r.db.state.assignments[id].Fields(), changes, syncedAt))
	return nil
}

func (r *fakeAssignmentRepo) TouchLastSynced(_ context.Context, _ sqlx.ExtContext, ids []int64, syncedAt time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if a, ok := r.db.state.assignments[id]; ok {
			a.LastSynced = syncedAt
			r.db.state.assignments[id] = a
			n++
		}
	}
	return n, nil
}

type fakeEnrollmentRepo struct{ db *fakeDB }

func (r *fakeEnrollmentRepo) FindByPairs(_ context.Context, _ sqlx.ExtContext, pairs []repository.EnrollmentPair) (map[string]models.Enrollment, error) {
	out := map[string]models.Enrollment{}
	for _, p := range pairs {
		key := models.EnrollmentKey(p.StudentID, p.CourseID)
		if e, ok := r.db.state.enrollments[key]; ok {
			out[key] = e
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) Insert(_ context.Context, _ sqlx.ExtContext, fields models.Fields, syncedAt time.Time) (string, error) {
	e := enrollmentFrom(withSynced(fields, syncedAt))
	if err := r.db.write(models.EntityEnrollment, e.Key()); err != nil {
		return "", err
	}
	r.db.enrollmentSeq++
	e.ID = fmt.Sprintf("enr-%d", r.db.enrollmentSeq)
	r.db.state.enrollments[e.Key()] = e
	return e.ID, nil
}

func (r *fakeEnrollmentRepo) Update(_ context.Context, _ sqlx.ExtContext, id string, changes models.Fields, syncedAt time.Time) error {
	for key, e := range r.db.state.enrollments {
		if e.ID != id {
			continue
		}
		if err := r.db.write(models.EntityEnrollment, key); err != nil {
			return err
		}
		r.db.state.enrollments[key] = enrollmentFrom(mergeFields(e.Fields(), changes, syncedAt))
		return nil
	}
	return fmt.Errorf("enrollment %s not found", id)
}

func (r *fakeEnrollmentRepo) TouchLastSynced(_ context.Context, _ sqlx.ExtContext, ids []string, syncedAt time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		for key, e := range r.db.state.enrollments {
			if e.ID == id {
				e.LastSynced = syncedAt
				r.db.state.enrollments[key] = e
				n++
			}
		}
	}
	return n, nil
}

type fakeHistoryRepo struct{ db *fakeDB }

func (r *fakeHistoryRepo) InsertGradeHistory(_ context.Context, _ sqlx.ExtContext, row *models.GradeHistory) error {
	if r.db.failHistory {
		return errors.New("insert grade history: disk full")
	}
	r.db.state.grades = append(r.db.state.grades, *row)
	return nil
}

func (r *fakeHistoryRepo) InsertAssignmentScore(_ context.Context, _ sqlx.ExtContext, row *models.AssignmentScoreHistory) error {
	if r.db.failHistory {
		return errors.New("insert assignment score: disk full")
	}
	r.db.state.scores = append(r.db.state.scores, *row)
	return nil
}

type fakeHistoryCounter struct {
	failures map[string]int
}

func (c *fakeHistoryCounter) RecordHistoryFailure(entity string) {
	if c.failures == nil {
		c.failures = map[string]int{}
	}
	c.failures[entity]++
}

type fakePublisher struct {
	results []*models.SyncResult
	err     error
}

func (p *fakePublisher) SaveResult(_ context.Context, result *models.SyncResult, _ time.Duration) error {
	p.results = append(p.results, result)
	return p.err
}

type fakeSyncMetrics struct {
	runs      map[string]int
	records   map[string]int
	rollbacks int
}

func newFakeSyncMetrics() *fakeSyncMetrics {
	return &fakeSyncMetrics{runs: map[string]int{}, records: map[string]int{}}
}

func (m *fakeSyncMetrics) ObserveSyncRun(mode, outcome string, _ time.Duration) {
	m.runs[mode+":"+outcome]++
}

func (m *fakeSyncMetrics) RecordSyncRecords(entity, outcome string, n int) {
	m.records[entity+":"+outcome] += n
}

func (m *fakeSyncMetrics) RecordRollback(string) { m.rollbacks++ }

func enrollmentKeys(db *fakeDB) []string {
	keys := make([]string, 0, len(db.state.enrollments))
	for k := range db.state.enrollments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
