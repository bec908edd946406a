package models

import (
	"fmt"
	"time"
)

// SyncBatch groups raw Canvas records by entity type.
type SyncBatch struct {
	CourseID    *int64                   `json:"course_id,omitempty"`
	Courses     []map[string]interface{} `json:"courses"`
	Students    []map[string]interface{} `json:"students"`
	Assignments []map[string]interface{} `json:"assignments"`
	Enrollments []map[string]interface{} `json:"enrollments"`
}

// Records returns the raw records for t.
func (b SyncBatch) Records(t EntityType) []map[string]interface{} {
	switch t {
	case EntityCourse:
		return b.Courses
	case EntityStudent:
		return b.Students
	case EntityAssignment:
		return b.Assignments
	case EntityEnrollment:
		return b.Enrollments
	default:
		return nil
	}
}

// Size is the total number of raw records.
func (b SyncBatch) Size() int {
	return len(b.Courses) + len(b.Students) + len(b.Assignments) + len(b.Enrollments)
}

// SyncMode labels how a batch was produced.
type SyncMode string

// Supported sync modes.
const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

// SyncState is a coordinator state.
type SyncState string

// Coordinator states.
const (
	StateIdle               SyncState = "idle"
	StateValidating         SyncState = "validating"
	StateSyncingCourses     SyncState = "syncing_courses"
	StateSyncingStudents    SyncState = "syncing_students"
	StateSyncingAssignments SyncState = "syncing_assignments"
	StateSyncingEnrollments SyncState = "syncing_enrollments"
	StateReconciling        SyncState = "reconciling"
	StateCommitted          SyncState = "committed"
	StateRolledBack         SyncState = "rolled_back"
)

var stageStates = map[EntityType]SyncState{
	EntityCourse:     StateSyncingCourses,
	EntityStudent:    StateSyncingStudents,
	EntityAssignment: StateSyncingAssignments,
	EntityEnrollment: StateSyncingEnrollments,
}

// StageState returns the state in which entity t is synced.
func StageState(t EntityType) SyncState {
	return stageStates[t]
}

var transitions = map[SyncState][]SyncState{
	StateIdle:               {StateValidating},
	StateValidating:         {StateSyncingCourses, StateRolledBack},
	StateSyncingCourses:     {StateSyncingStudents, StateRolledBack},
	StateSyncingStudents:    {StateSyncingAssignments, StateRolledBack},
	StateSyncingAssignments: {StateSyncingEnrollments, StateRolledBack},
	StateSyncingEnrollments: {StateReconciling, StateRolledBack},
	StateReconciling:        {StateCommitted, StateRolledBack},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to SyncState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s SyncState) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// RecordFailure describes one record that could not be synced.
type RecordFailure struct {
	EntityType EntityType `json:"entity_type"`
	Identity   string     `json:"identity"`
	Reason     string     `json:"reason"`
	Code       string     `json:"code"`
}

// SyncConflict reports records in one batch sharing an identity.
type SyncConflict struct {
	EntityType EntityType `json:"entity_type"`
	Identity   string     `json:"identity"`
	// Positions lists every claimant's input index; the last one wins.
	Positions []int  `json:"positions"`
	Winner    int    `json:"winner"`
	Reason    string `json:"reason"`
	Code      string `json:"code"`
}

// IntegrityViolation is a child record whose parent is neither persisted nor earlier in the batch.
type IntegrityViolation struct {
	EntityType EntityType `json:"entity_type"`
	Identity   string     `json:"identity"`
	ParentType EntityType `json:"parent_type"`
	ParentID   string     `json:"parent_id"`
	Position   int        `json:"position"`
	Reason     string     `json:"reason"`
}

// Failure converts the violation into a record failure.
func (v IntegrityViolation) Failure(code string) RecordFailure {
	return RecordFailure{EntityType: v.EntityType, Identity: v.Identity, Reason: v.Reason, Code: code}
}

// NewIntegrityViolation builds a violation with a readable reason.
func NewIntegrityViolation(entity EntityType, identity string, parent EntityType, parentID string, position int) IntegrityViolation {
	return IntegrityViolation{
		EntityType: entity,
		Identity:   identity,
		ParentType: parent,
		ParentID:   parentID,
		Position:   position,
		Reason:     fmt.Sprintf("%s %s references missing %s %s", entity, identity, parent, parentID),
	}
}

// SyncResult is the structured outcome of one run. It is always returned, even on failure.
type SyncResult struct {
	RunID             string             `json:"run_id"`
	Mode              SyncMode           `json:"mode"`
	Strict            bool               `json:"strict"`
	Success           bool               `json:"success"`
	PartialSuccess    bool               `json:"partial_success"`
	State             SyncState          `json:"state"`
	ObjectsCreated    map[EntityType]int `json:"objects_created"`
	ObjectsUpdated    map[EntityType]int `json:"objects_updated"`
	ObjectsUnchanged  map[EntityType]int `json:"objects_unchanged"`
	Failures          []RecordFailure    `json:"failures"`
	Conflicts         []SyncConflict     `json:"conflicts"`
	RollbackPerformed bool               `json:"rollback_performed"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	Error             string             `json:"error,omitempty"`
}

// NewSyncResult returns a result with zeroed counters for every entity type.
func NewSyncResult(runID string, mode SyncMode, strict bool, startedAt time.Time) *SyncResult {
	res := &SyncResult{
		RunID:            runID,
		Mode:             mode,
		Strict:           strict,
		State:            StateIdle,
		ObjectsCreated:   make(map[EntityType]int, len(SyncOrder)),
		ObjectsUpdated:   make(map[EntityType]int, len(SyncOrder)),
		ObjectsUnchanged: make(map[EntityType]int, len(SyncOrder)),
		Failures:         []RecordFailure{},
		Conflicts:        []SyncConflict{},
		StartedAt:        startedAt,
	}
	for _, t := range SyncOrder {
		res.ObjectsCreated[t] = 0
		res.ObjectsUpdated[t] = 0
		res.ObjectsUnchanged[t] = 0
	}
	return res
}

// AddFailure appends a record failure.
func (r *SyncResult) AddFailure(f RecordFailure) {
	r.Failures = append(r.Failures, f)
}

// TotalCreated sums created counts across entity types.
func (r *SyncResult) TotalCreated() int {
	return sum(r.ObjectsCreated)
}

// TotalUpdated sums updated counts across entity types.
func (r *SyncResult) TotalUpdated() int {
	return sum(r.ObjectsUpdated)
}

func sum(m map[EntityType]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
