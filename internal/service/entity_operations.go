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

// UpsertAction is what an upsert did to one record.
type UpsertAction string

// Upsert actions.
const (
	ActionCreated   UpsertAction = "created"
	ActionUpdated   UpsertAction = "updated"
	ActionUnchanged UpsertAction = "unchanged"
)

// UpsertOutcome describes a single-record upsert.
type UpsertOutcome struct {
	Action   UpsertAction `json:"action"`
	Identity string       `json:"identity"`
	Changed  []string     `json:"changed,omitempty"`
}

// BatchOutcome aggregates a batch upsert. Identities appear in input order.
type BatchOutcome struct {
	Entity    models.EntityType      `json:"entity"`
	Created   []string               `json:"created"`
	Updated   []string               `json:"updated"`
	Unchanged []string               `json:"unchanged"`
	Failed    []models.RecordFailure `json:"failed"`
	// Changes lists the changed fields of each updated identity.
	Changes map[string][]string `json:"changes,omitempty"`
	// CourseIDs are the courses whose derived counters the batch may have affected.
	CourseIDs []int64 `json:"course_ids"`
}

type historyRecorder interface {
	RecordIfChanged(ctx context.Context, scope repository.Scope, entry models.HistoryEntry, changed models.Fields) bool
}

// loadedState is the persisted state one batch is reconciled against.
type loadedState struct {
	existing map[string]models.Fields
	parents  map[models.EntityType]map[int64]bool
	// userStudents maps Canvas user ids to student ids.
	userStudents map[int64]int64
}

func newLoadedState() *loadedState {
	return &loadedState{
		existing:     make(map[string]models.Fields),
		parents:      make(map[models.EntityType]map[int64]bool),
		userStudents: make(map[int64]int64),
	}
}

// entityStore adapts one entity type's repository to the shared upsert algorithm.
type entityStore interface {
	descriptor() models.EntityDescriptor
	// load performs the bulk lookups for records.
	load(ctx context.Context, exec sqlx.ExtContext, records []models.Record) (*loadedState, error)
	// resolve fills parent references and returns a record-level error when one is missing.
	resolve(rec *models.Record, state *loadedState) error
	key(rec models.Record) string
	insert(ctx context.Context, exec sqlx.ExtContext, rec models.Record, state *loadedState) (models.Fields, error)
	update(ctx context.Context, exec sqlx.ExtContext, existing, changes models.Fields, syncedAt time.Time) error
	touch(ctx context.Context, exec sqlx.ExtContext, rows []models.Fields, syncedAt time.Time) error
	historyEntry(persisted models.Fields) models.HistoryEntry
	courseOf(fields models.Fields) (int64, bool)
}

// EntityOperations upserts records of one entity type.
type EntityOperations struct {
	store    entityStore
	detector *ChangeDetector
	history  historyRecorder
	logger   *zap.Logger
}

func newEntityOperations(store entityStore, detector *ChangeDetector, history historyRecorder, logger *zap.Logger) *EntityOperations {
	if detector == nil {
		detector = NewChangeDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityOperations{
		store:    store,
		detector: detector,
		history:  history,
		logger:   logger.With(zap.String("entity", string(store.descriptor().Type))),
	}
}

// Entity returns the entity type handled.
func (o *EntityOperations) Entity() models.EntityType {
	return o.store.descriptor().Type
}

// Upsert creates, updates or touches one record.
func (o *EntityOperations) Upsert(ctx context.Context, scope repository.Scope, record models.Record) (UpsertOutcome, error) {
	batch, err := o.BatchUpsert(ctx, scope, []models.Record{record})
	if err != nil {
		return UpsertOutcome{}, err
	}
	switch {
	case len(batch.Failed) > 0:
		f := batch.Failed[0]
		return UpsertOutcome{Identity: f.Identity}, appErrors.New(f.Code, statusFor(f.Code), f.Reason)
	case len(batch.Created) > 0:
		return UpsertOutcome{Action: ActionCreated, Identity: batch.Created[0]}, nil
	case len(batch.Updated) > 0:
		return UpsertOutcome{Action: ActionUpdated, Identity: batch.Updated[0], Changed: batch.Changes[batch.Updated[0]]}, nil
	default:
		return UpsertOutcome{Action: ActionUnchanged, Identity: batch.Unchanged[0]}, nil
	}
}

// BatchUpsert reconciles records against one bulk lookup. Record-level failures are
// collected in Failed; a returned error means a statement failed and the caller's
// scope must be rolled back.
func (o *EntityOperations) BatchUpsert(ctx context.Context, scope repository.Scope, records []models.Record) (BatchOutcome, error) {
	desc := o.store.descriptor()
	out := BatchOutcome{
		Entity:    desc.Type,
		Created:   []string{},
		Updated:   []string{},
		Unchanged: []string{},
		Failed:    []models.RecordFailure{},
		Changes:   map[string][]string{},
	}
	if len(records) == 0 {
		return out, nil
	}
	exec := scope.Exec()

	state, err := o.store.load(ctx, exec, records)
	if err != nil {
		return out, fmt.Errorf("load %s: %w", desc.Type, err)
	}

	courses := make(map[int64]struct{})
	touched := make(map[string]bool)
	var untouched []models.Fields
	var syncedAt time.Time

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec.Fields = rec.Fields.Clone()
		if rec.SyncedAt.After(syncedAt) {
			syncedAt = rec.SyncedAt
		}

		if err := o.store.resolve(&rec, state); err != nil {
			o.logger.Warn("record rejected", zap.String("identity", rec.Identity()), zap.Error(err))
			out.Failed = append(out.Failed, recordFailure(rec, err))
			continue
		}
		key := o.store.key(rec)

		existing, found := state.existing[key]
		if !found {
			persisted, err := o.store.insert(ctx, exec, rec, state)
			if err != nil {
				return out, err
			}
			state.existing[key] = persisted
			out.Created = append(out.Created, key)
			o.noteCourse(courses, persisted)
			continue
		}

		changes := o.detector.Diff(desc, existing, rec.Fields)
		if len(changes) == 0 {
			if !touched[key] {
				touched[key] = true
				untouched = append(untouched, existing)
			}
			out.Unchanged = append(out.Unchanged, key)
			continue
		}

		if err := o.store.update(ctx, exec, existing, changes, rec.SyncedAt); err != nil {
			return out, err
		}
		merged := existing.Clone()
		for k, v := range changes {
			merged[k] = v
		}
		merged[models.FieldLastSynced] = rec.SyncedAt
		state.existing[key] = merged
		out.Updated = append(out.Updated, key)
		out.Changes[key] = changes.Keys()
		o.noteCourse(courses, merged)

		if o.history != nil {
			o.history.RecordIfChanged(ctx, scope, o.store.historyEntry(merged), changes)
		}
	}

	if len(untouched) > 0 {
		if err := o.store.touch(ctx, exec, untouched, syncedAt); err != nil {
			return out, err
		}
	}

	for id := range courses {
		out.CourseIDs = append(out.CourseIDs, id)
	}
	o.logger.Debug("batch upserted",
		zap.Int("created", len(out.Created)),
		zap.Int("updated", len(out.Updated)),
		zap.Int("unchanged", len(out.Unchanged)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}

func (o *EntityOperations) noteCourse(courses map[int64]struct{}, fields models.Fields) {
	if id, ok := o.store.courseOf(fields); ok {
		courses[id] = struct{}{}
	}
}

func recordFailure(rec models.Record, err error) models.RecordFailure {
	return models.RecordFailure{
		EntityType: rec.Entity,
		Identity:   rec.Identity(),
		Reason:     err.Error(),
		Code:       appErrors.CodeOf(err),
	}
}

func statusFor(code string) int {
	for _, e := range []*appErrors.Error{appErrors.ErrMissingRequired, appErrors.ErrValidation, appErrors.ErrRelationship, appErrors.ErrSyncConflict, appErrors.ErrTransactionFailure} {
		if e.Code == code {
			return e.Status
		}
	}
	return appErrors.ErrInternal.Status
}

func relationshipError(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrRelationship, fmt.Sprintf(format, args...))
}
