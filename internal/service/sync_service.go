package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/repository"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/transform"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/tracing"
)

type txBeginner interface {
	Begin(ctx context.Context) (repository.Scope, error)
	Reader() sqlx.ExtContext
}

// EntityUpserter reconciles one entity type's records inside a scope.
type EntityUpserter interface {
	Entity() models.EntityType
	BatchUpsert(ctx context.Context, scope repository.Scope, records []models.Record) (BatchOutcome, error)
}

type syncMetrics interface {
	ObserveSyncRun(mode, outcome string, duration time.Duration)
	RecordSyncRecords(entity, outcome string, n int)
	RecordRollback(mode string)
}

type resultPublisher interface {
	SaveResult(ctx context.Context, result *models.SyncResult, ttl time.Duration) error
}

// Run outcomes used as metric labels.
const (
	outcomeSuccess    = "success"
	outcomePartial    = "partial"
	outcomeRolledBack = "rolled_back"
)

// SyncServiceConfig tunes the coordinator.
type SyncServiceConfig struct {
	// Strict rolls the whole batch back on any failure.
	Strict         bool
	OptionalFields map[models.EntityType][]string
	ResultTTL      time.Duration
}

// SyncServiceParams groups constructor dependencies.
type SyncServiceParams struct {
	Tx             txBeginner
	Transformers   transform.Registry
	Operations     []EntityUpserter
	Courses        courseRepository
	Students       studentRepository
	Results        resultPublisher
	Metrics        syncMetrics
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
	Config         SyncServiceConfig
	Now            func() time.Time
}

// SyncService is the single writer entry point for a sync run. It sequences
// entity stages in dependency order inside one transaction.
type SyncService struct {
	tx           txBeginner
	transformers transform.Registry
	operations   map[models.EntityType]EntityUpserter
	courses      courseRepository
	students     studentRepository
	results      resultPublisher
	metrics      syncMetrics
	tracer       trace.Tracer
	logger       *zap.Logger
	cfg          SyncServiceConfig
	now          func() time.Time
}

// NewSyncService constructs a SyncService with sane defaults.
func NewSyncService(params SyncServiceParams) *SyncService {
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := params.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	transformers := params.Transformers
	if transformers == nil {
		transformers = transform.NewRegistry(logger, nil)
	}
	ops := make(map[models.EntityType]EntityUpserter, len(params.Operations))
	for _, op := range params.Operations {
		if op != nil {
			ops[op.Entity()] = op
		}
	}
	return &SyncService{
		tx:           params.Tx,
		transformers: transformers,
		operations:   ops,
		courses:      params.Courses,
		students:     params.Students,
		results:      params.Results,
		metrics:      params.Metrics,
		tracer:       provider.Tracer(tracing.InstrumentationName),
		logger:       logger,
		cfg:          cfg,
		now:          now,
	}
}

// PreparedBatch holds normalized records grouped by entity, in input order.
type PreparedBatch struct {
	Records  map[models.EntityType][]models.Record
	Failures []models.RecordFailure
}

type syncRun struct {
	result  *models.SyncResult
	logger  *zap.Logger
	courses map[int64]struct{}
}

// fatalError marks failures that must abort the whole transaction in any mode.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone)
}

// ExecuteFullSync reconciles a complete batch. The returned result is never nil.
func (s *SyncService) ExecuteFullSync(ctx context.Context, batch models.SyncBatch) (*models.SyncResult, error) {
	return s.execute(ctx, batch, models.SyncModeFull)
}

// ExecuteIncrementalSync reconciles a batch holding only changed records.
func (s *SyncService) ExecuteIncrementalSync(ctx context.Context, batch models.SyncBatch) (*models.SyncResult, error) {
	return s.execute(ctx, batch, models.SyncModeIncremental)
}

// Execute dispatches on mode.
func (s *SyncService) Execute(ctx context.Context, batch models.SyncBatch, mode models.SyncMode) (*models.SyncResult, error) {
	if mode == models.SyncModeIncremental {
		return s.ExecuteIncrementalSync(ctx, batch)
	}
	return s.ExecuteFullSync(ctx, batch)
}

// ValidateSyncIntegrity reports child records whose parent is neither persisted nor in the batch.
// It never writes.
func (s *SyncService) ValidateSyncIntegrity(ctx context.Context, batch models.SyncBatch) ([]models.IntegrityViolation, error) {
	prepared := s.Prepare(batch)
	s.HandleSyncConflicts(prepared)
	return s.validate(ctx, s.tx.Reader(), prepared)
}

// Prepare transforms every raw record. Rejected records become failures.
func (s *SyncService) Prepare(batch models.SyncBatch) *PreparedBatch {
	tctx := transform.Context{CourseID: batch.CourseID, OptionalFields: s.cfg.OptionalFields, Now: s.now}
	prepared := &PreparedBatch{Records: make(map[models.EntityType][]models.Record, len(models.SyncOrder))}
	for _, entity := range models.SyncOrder {
		for i, raw := range batch.Records(entity) {
			res := s.transformers.Transform(entity, raw, tctx)
			if !res.Success {
				prepared.Failures = append(prepared.Failures, res.Failure(entity))
				continue
			}
			rec := res.Record
			rec.Position = i
			prepared.Records[entity] = append(prepared.Records[entity], rec)
		}
	}
	return prepared
}

// HandleSyncConflicts keeps only the last record per identity, in input order,
// and reports every identity claimed by records with differing data.
// Enrollments naming a student by user_id are matched to students of the same batch.
func (s *SyncService) HandleSyncConflicts(prepared *PreparedBatch) []models.SyncConflict {
	conflicts := []models.SyncConflict{}
	for _, entity := range models.SyncOrder {
		records := prepared.Records[entity]
		if len(records) < 2 {
			continue
		}
		desc := models.MustDescriptor(entity)
		identity := func(rec models.Record) string { return rec.Identity() }
		if entity == models.EntityEnrollment {
			users := batchUserStudents(prepared.Records[models.EntityStudent])
			identity = func(rec models.Record) string { return enrollmentIdentity(rec, users) }
		}
		claims := make(map[string][]int, len(records))
		var order []string
		for i, rec := range records {
			id := identity(rec)
			if _, seen := claims[id]; !seen {
				order = append(order, id)
			}
			claims[id] = append(claims[id], i)
		}
		if len(order) == len(records) {
			continue
		}

		kept := make([]models.Record, 0, len(order))
		for i, rec := range records {
			idx := claims[identity(rec)]
			if idx[len(idx)-1] == i {
				kept = append(kept, rec)
			}
		}
		for _, id := range order {
			idx := claims[id]
			if len(idx) < 2 || !differs(desc, records, idx) {
				continue
			}
			positions := make([]int, len(idx))
			for j, i := range idx {
				positions[j] = records[i].Position
			}
			winner := positions[len(positions)-1]
			conflict := models.SyncConflict{
				EntityType: entity,
				Identity:   id,
				Positions:  positions,
				Winner:     winner,
				Reason:     fmt.Sprintf("%d %s records share identity %s; record at position %d wins", len(idx), entity, id, winner),
				Code:       appErrors.ErrSyncConflict.Code,
			}
			s.logger.Warn("sync conflict resolved by last write",
				zap.String("entity", string(entity)),
				zap.String("identity", id),
				zap.Ints("positions", positions),
			)
			conflicts = append(conflicts, conflict)
		}
		prepared.Records[entity] = kept
	}
	return conflicts
}

// batchUserStudents maps Canvas user ids to student ids for the batch's students.
func batchUserStudents(students []models.Record) map[int64]int64 {
	out := make(map[int64]int64, len(students))
	for _, rec := range students {
		userID, uok := rec.Fields.Int64(models.FieldUserID)
		id, iok := rec.Fields.Int64(models.FieldID)
		if uok && iok {
			out[userID] = id
		}
	}
	return out
}

func enrollmentIdentity(rec models.Record, users map[int64]int64) string {
	if rec.Fields.Has(models.FieldStudentID) {
		return rec.Identity()
	}
	userID, _ := rec.Fields.Int64(models.FieldUserID)
	studentID, ok := users[userID]
	if !ok {
		return rec.Identity()
	}
	courseID, _ := rec.Fields.Int64(models.FieldCourseID)
	return models.EnrollmentKey(studentID, courseID)
}

func differs(desc models.EntityDescriptor, records []models.Record, idx []int) bool {
	first := records[idx[0]].Fields
	for _, i := range idx[1:] {
		other := records[i].Fields
		for _, field := range desc.MutableFields {
			a, aok := first[field]
			b, bok := other[field]
			if aok != bok || !valuesEqual(a, b) {
				return true
			}
		}
	}
	return false
}

func (s *SyncService) validate(ctx context.Context, exec sqlx.ExtContext, prepared *PreparedBatch) ([]models.IntegrityViolation, error) {
	batchCourses := idSet(prepared.Records[models.EntityCourse], models.FieldID)
	batchStudents := idSet(prepared.Records[models.EntityStudent], models.FieldID)
	batchUsers := idSet(prepared.Records[models.EntityStudent], models.FieldUserID)

	var courseIDs, studentIDs, userIDs []int64
	for _, entity := range []models.EntityType{models.EntityAssignment, models.EntityEnrollment} {
		for _, rec := range prepared.Records[entity] {
			if id, ok := rec.Fields.Int64(models.FieldCourseID); ok && !batchCourses[id] {
				courseIDs = append(courseIDs, id)
			}
		}
	}
	for _, rec := range prepared.Records[models.EntityEnrollment] {
		if id, ok := rec.Fields.Int64(models.FieldStudentID); ok {
			if !batchStudents[id] {
				studentIDs = append(studentIDs, id)
			}
		} else if id, ok := rec.Fields.Int64(models.FieldUserID); ok && !batchUsers[id] {
			userIDs = append(userIDs, id)
		}
	}

	persistedCourses := map[int64]bool{}
	persistedStudents := map[int64]bool{}
	persistedUsers := map[int64]bool{}
	var err error
	if len(courseIDs) > 0 {
		if persistedCourses, err = s.courses.ExistingIDs(ctx, exec, courseIDs); err != nil {
			return nil, fmt.Errorf("validate course parents: %w", err)
		}
	}
	if len(studentIDs) > 0 {
		if persistedStudents, err = s.students.ExistingIDs(ctx, exec, studentIDs); err != nil {
			return nil, fmt.Errorf("validate student parents: %w", err)
		}
	}
	if len(userIDs) > 0 {
		if persistedUsers, err = s.students.ExistingUserIDs(ctx, exec, userIDs); err != nil {
			return nil, fmt.Errorf("validate student users: %w", err)
		}
	}

	violations := []models.IntegrityViolation{}
	courseKnown := func(id int64) bool { return batchCourses[id] || persistedCourses[id] }

	for _, rec := range prepared.Records[models.EntityAssignment] {
		courseID, _ := rec.Fields.Int64(models.FieldCourseID)
		if !courseKnown(courseID) {
			violations = append(violations, models.NewIntegrityViolation(models.EntityAssignment, rec.Identity(), models.EntityCourse, models.IDKey(courseID), rec.Position))
		}
	}
	for _, rec := range prepared.Records[models.EntityEnrollment] {
		if id, ok := rec.Fields.Int64(models.FieldStudentID); ok {
			if !batchStudents[id] && !persistedStudents[id] {
				violations = append(violations, models.NewIntegrityViolation(models.EntityEnrollment, rec.Identity(), models.EntityStudent, models.IDKey(id), rec.Position))
			}
		} else if id, ok := rec.Fields.Int64(models.FieldUserID); ok && !batchUsers[id] && !persistedUsers[id] {
			violations = append(violations, models.NewIntegrityViolation(models.EntityEnrollment, rec.Identity(), models.EntityStudent, "user:"+models.IDKey(id), rec.Position))
		}
		courseID, _ := rec.Fields.Int64(models.FieldCourseID)
		if !courseKnown(courseID) {
			violations = append(violations, models.NewIntegrityViolation(models.EntityEnrollment, rec.Identity(), models.EntityCourse, models.IDKey(courseID), rec.Position))
		}
	}
	return violations, nil
}

func (s *SyncService) execute(ctx context.Context, batch models.SyncBatch, mode models.SyncMode) (*models.SyncResult, error) {
	result := models.NewSyncResult(uuid.NewString(), mode, s.cfg.Strict, s.now())
	ctx, span := s.tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("sync.run_id", result.RunID),
		attribute.String("sync.mode", string(mode)),
		attribute.Bool("sync.strict", s.cfg.Strict),
		attribute.Int("sync.records", batch.Size()),
	))
	defer span.End()

	run := &syncRun{
		result:  result,
		logger:  s.logger.With(zap.String("run_id", result.RunID), zap.String("mode", string(mode))),
		courses: make(map[int64]struct{}),
	}
	run.logger.Info("sync started", zap.Int("records", batch.Size()), zap.Bool("strict", s.cfg.Strict))

	err := s.runStages(ctx, run, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("sync.state", string(result.State)),
		attribute.Int("sync.created", result.TotalCreated()),
		attribute.Int("sync.updated", result.TotalUpdated()),
		attribute.Int("sync.failures", len(result.Failures)),
	)
	s.finish(ctx, run)
	return result, err
}

func (s *SyncService) runStages(ctx context.Context, run *syncRun, batch models.SyncBatch) error {
	result := run.result
	if err := s.transition(run, models.StateValidating); err != nil {
		return s.abort(run, nil, err)
	}

	prepared := s.Prepare(batch)
	for _, f := range prepared.Failures {
		result.AddFailure(f)
	}
	result.Conflicts = s.HandleSyncConflicts(prepared)

	violations, err := s.validate(ctx, s.tx.Reader(), prepared)
	if err != nil {
		return s.abort(run, nil, appErrors.WrapAs(appErrors.ErrUnavailable, err, "integrity pre-flight failed"))
	}
	if len(violations) > 0 {
		run.logger.Warn("integrity violations found", zap.Int("count", len(violations)))
	}
	if s.cfg.Strict && (len(result.Failures) > 0 || len(violations) > 0) {
		for _, v := range violations {
			result.AddFailure(v.Failure(appErrors.ErrRelationship.Code))
		}
		return s.abort(run, nil, appErrors.Clone(appErrors.ErrTransactionFailure,
			fmt.Sprintf("strict sync rejected: %d record failures", len(result.Failures))))
	}

	scope, err := s.tx.Begin(ctx)
	if err != nil {
		return s.abort(run, nil, err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = scope.Rollback()
			panic(r)
		}
	}()

	for _, entity := range models.SyncOrder {
		if err := s.transition(run, models.StageState(entity)); err != nil {
			return s.abort(run, scope, err)
		}
		if err := s.runStage(ctx, run, scope, entity, prepared.Records[entity]); err != nil {
			return s.abort(run, scope, err)
		}
	}

	if err := s.transition(run, models.StateReconciling); err != nil {
		return s.abort(run, scope, err)
	}
	if err := s.reconcile(ctx, run, scope); err != nil {
		return s.abort(run, scope, err)
	}

	if err := scope.Commit(); err != nil {
		result.RollbackPerformed = true
		return s.abort(run, nil, err)
	}
	if err := s.transition(run, models.StateCommitted); err != nil {
		return err
	}
	result.Success = true
	result.PartialSuccess = len(result.Failures) > 0
	return nil
}

func (s *SyncService) runStage(ctx context.Context, run *syncRun, scope repository.Scope, entity models.EntityType, records []models.Record) error {
	ctx, span := s.tracer.Start(ctx, "sync.stage", trace.WithAttributes(
		attribute.String("sync.entity", string(entity)),
		attribute.Int("sync.records", len(records)),
	))
	defer span.End()

	if len(records) == 0 {
		return nil
	}
	ops, ok := s.operations[entity]
	if !ok {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("no operations registered for %s", entity))
	}

	if s.cfg.Strict {
		outcome, err := ops.BatchUpsert(ctx, scope, records)
		if err != nil {
			span.RecordError(err)
			return err
		}
		s.apply(run, outcome)
		if len(outcome.Failed) > 0 {
			return appErrors.Clone(appErrors.ErrTransactionFailure,
				fmt.Sprintf("strict sync rolled back: %d %s records failed", len(outcome.Failed), entity))
		}
		return nil
	}

	var outcome BatchOutcome
	err := inSavepoint(ctx, scope, func(sp repository.Scope) error {
		var err error
		outcome, err = ops.BatchUpsert(ctx, sp, records)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if isFatal(err) {
			return err
		}
		run.logger.Warn("stage rolled back", zap.String("entity", string(entity)), zap.Error(err))
		reason := fmt.Sprintf("%s stage rolled back: %v", entity, err)
		for _, rec := range records {
			run.result.AddFailure(models.RecordFailure{
				EntityType: entity,
				Identity:   rec.Identity(),
				Reason:     reason,
				Code:       appErrors.ErrTransactionFailure.Code,
			})
		}
		if s.metrics != nil {
			s.metrics.RecordSyncRecords(string(entity), "failed", len(records))
		}
		return nil
	}
	s.apply(run, outcome)
	return nil
}

// inSavepoint runs fn in a savepoint of scope that is released on success and
// rolled back on error or panic. A failure to open, release or roll back the
// savepoint is fatal; otherwise fn's own error is returned unchanged.
func inSavepoint(ctx context.Context, scope repository.Scope, fn func(repository.Scope) error) error {
	var fnErr error
	err := repository.RunNested(ctx, scope, func(sp repository.Scope) error {
		fnErr = fn(sp)
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil && errors.Is(err, fnErr) {
		return fnErr
	}
	return fatal(err)
}

func (s *SyncService) apply(run *syncRun, outcome BatchOutcome) {
	result := run.result
	entity := outcome.Entity
	result.ObjectsCreated[entity] += len(outcome.Created)
	result.ObjectsUpdated[entity] += len(outcome.Updated)
	result.ObjectsUnchanged[entity] += len(outcome.Unchanged)
	for _, f := range outcome.Failed {
		result.AddFailure(f)
	}
	for _, id := range outcome.CourseIDs {
		run.courses[id] = struct{}{}
	}
	if s.metrics != nil {
		s.metrics.RecordSyncRecords(string(entity), "created", len(outcome.Created))
		s.metrics.RecordSyncRecords(string(entity), "updated", len(outcome.Updated))
		s.metrics.RecordSyncRecords(string(entity), "unchanged", len(outcome.Unchanged))
		s.metrics.RecordSyncRecords(string(entity), "failed", len(outcome.Failed))
	}
	run.logger.Info("stage finished",
		zap.String("entity", string(entity)),
		zap.Int("created", len(outcome.Created)),
		zap.Int("updated", len(outcome.Updated)),
		zap.Int("unchanged", len(outcome.Unchanged)),
		zap.Int("failed", len(outcome.Failed)),
	)
}

// reconcile refreshes derived course counters for every course the run touched.
func (s *SyncService) reconcile(ctx context.Context, run *syncRun, scope repository.Scope) error {
	if len(run.courses) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "sync.reconcile", trace.WithAttributes(attribute.Int("sync.courses", len(run.courses))))
	defer span.End()

	if s.cfg.Strict {
		return s.refreshCounters(ctx, run, scope.Exec())
	}

	err := inSavepoint(ctx, scope, func(sp repository.Scope) error {
		return s.refreshCounters(ctx, run, sp.Exec())
	})
	if err != nil {
		if isFatal(err) {
			return err
		}
		span.RecordError(err)
		run.logger.Warn("course counters not refreshed", zap.Error(err))
	}
	return nil
}

func (s *SyncService) refreshCounters(ctx context.Context, run *syncRun, exec sqlx.ExtContext) error {
	ids := make([]int64, 0, len(run.courses))
	for id := range run.courses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var filter *repository.LifecycleFilter
	if desc := models.MustDescriptor(models.EntityEnrollment); desc.SupportsLifecycleFilter {
		filter = &repository.LifecycleFilter{Field: desc.LifecycleField, States: desc.ActiveStates}
	}
	counters, err := s.courses.ComputeCounters(ctx, exec, ids, filter)
	if err != nil {
		return err
	}
	current, err := s.courses.FindByIDs(ctx, exec, ids)
	if err != nil {
		return err
	}
	courseDesc := models.MustDescriptor(models.EntityCourse)
	for _, id := range ids {
		course, ok := current[id]
		next := counters[id]
		if !ok || !courseDesc.Active(course.Fields()) {
			continue
		}
		if course.TotalStudents == next.TotalStudents &&
			course.TotalAssignments == next.TotalAssignments &&
			course.TotalModules == next.TotalModules {
			continue
		}
		if err := s.courses.UpdateCounters(ctx, exec, next); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncService) transition(run *syncRun, to models.SyncState) error {
	from := run.result.State
	if !models.CanTransition(from, to) {
		return appErrors.Clone(appErrors.ErrTransactionFailure, fmt.Sprintf("illegal sync transition %s -> %s", from, to))
	}
	run.result.State = to
	run.logger.Debug("sync state", zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

// abort rolls back scope when one is open and marks the run failed. Causes are
// reported as TRANSACTION_FAILURE unless nothing was written and the cause is already typed.
func (s *SyncService) abort(run *syncRun, scope repository.Scope, cause error) error {
	result := run.result
	if scope != nil {
		if err := scope.Rollback(); err != nil {
			run.logger.Error("rollback failed", zap.Error(err))
		}
		result.RollbackPerformed = true
	}
	if result.RollbackPerformed && s.metrics != nil {
		s.metrics.RecordRollback(string(result.Mode))
	}
	if !result.State.Terminal() {
		result.State = models.StateRolledBack
	}
	result.Success = false
	result.PartialSuccess = false

	err := cause
	var typed *appErrors.Error
	isTyped := errors.As(cause, &typed)
	keep := isTyped && (typed.Code == appErrors.ErrTransactionFailure.Code || !result.RollbackPerformed)
	if !keep {
		err = appErrors.WrapAs(appErrors.ErrTransactionFailure, cause, "sync transaction failed")
	}
	result.Error = err.Error()
	run.logger.Error("sync rolled back", zap.Error(err), zap.Bool("rollback_performed", result.RollbackPerformed))
	return err
}

func (s *SyncService) finish(ctx context.Context, run *syncRun) {
	result := run.result
	result.FinishedAt = s.now()

	outcome := outcomeSuccess
	switch {
	case !result.Success:
		outcome = outcomeRolledBack
	case result.PartialSuccess:
		outcome = outcomePartial
	}
	if s.metrics != nil {
		s.metrics.ObserveSyncRun(string(result.Mode), outcome, result.FinishedAt.Sub(result.StartedAt))
	}
	if s.results != nil {
		if err := s.results.SaveResult(context.WithoutCancel(ctx), result, s.cfg.ResultTTL); err != nil {
			run.logger.Warn("publish sync result failed", zap.Error(err))
		}
	}
	run.logger.Info("sync finished",
		zap.String("outcome", outcome),
		zap.String("state", string(result.State)),
		zap.Int("created", result.TotalCreated()),
		zap.Int("updated", result.TotalUpdated()),
		zap.Int("failures", len(result.Failures)),
		zap.Int("conflicts", len(result.Conflicts)),
	)
}

func idSet(records []models.Record, field string) map[int64]bool {
	out := make(map[int64]bool, len(records))
	for _, rec := range records {
		if id, ok := rec.Fields.Int64(field); ok {
			out[id] = true
		}
	}
	return out
}
