package models

// EntityType names a synced Canvas entity. Values double as batch keys.
type EntityType string

// Synced entity types.
const (
	EntityCourse     EntityType = "courses"
	EntityStudent    EntityType = "students"
	EntityAssignment EntityType = "assignments"
	EntityEnrollment EntityType = "enrollments"
)

// SyncOrder is the dependency order entity stages run in.
var SyncOrder = []EntityType{EntityCourse, EntityStudent, EntityAssignment, EntityEnrollment}

// Common column names.
const (
	FieldID         = "id"
	FieldLastSynced = "last_synced"
	FieldCourseID   = "course_id"
	FieldStudentID  = "student_id"
	FieldUserID     = "user_id"
)

// EntityDescriptor declares how an entity type is persisted and compared.
type EntityDescriptor struct {
	Type  EntityType
	Table string
	// IdentityFields are immutable after creation and never part of an update.
	IdentityFields []string
	// MutableFields are the only fields the change detector compares.
	MutableFields []string
	// InsertOnlyFields are written on create and ignored afterwards.
	InsertOnlyFields []string
	// DerivedFields are maintained by the reconciling stage, not by incoming data.
	DerivedFields []string
	// TrackedFields trigger a history row when they change.
	TrackedFields []string
	// SupportsLifecycleFilter marks entities whose LifecycleField can scope "active" rows.
	SupportsLifecycleFilter bool
	LifecycleField          string
	ActiveStates            []string
}

// IsMutable reports whether field participates in change detection.
func (d EntityDescriptor) IsMutable(field string) bool {
	return contains(d.MutableFields, field)
}

// Active reports whether fields describe a row in one of the descriptor's active
// lifecycle states. Rows of unfiltered entities, and rows without a known state, are active.
func (d EntityDescriptor) Active(fields Fields) bool {
	if !d.SupportsLifecycleFilter {
		return true
	}
	state, ok := fields.String(d.LifecycleField)
	if !ok {
		return true
	}
	return contains(d.ActiveStates, state)
}

// IsTracked reports whether field is history-tracked.
func (d EntityDescriptor) IsTracked(field string) bool {
	return contains(d.TrackedFields, field)
}

var descriptors = map[EntityType]EntityDescriptor{
	EntityCourse: {
		Type:           EntityCourse,
		Table:          "courses",
		IdentityFields: []string{FieldID},
		MutableFields: []string{
			"name", "course_code", "workflow_state", "start_at", "end_at", "calendar_ics",
		},
		InsertOnlyFields:        []string{"created_at"},
		DerivedFields:           []string{"total_students", "total_assignments", "total_modules"},
		SupportsLifecycleFilter: true,
		LifecycleField:          "workflow_state",
		ActiveStates:            []string{CourseStateAvailable, CourseStateUnpublished, CourseStateCompleted},
	},
	EntityStudent: {
		Type:           EntityStudent,
		Table:          "students",
		IdentityFields: []string{FieldID},
		MutableFields: []string{
			FieldUserID, "name", "login_id", "email", "current_score", "final_score", "last_activity_at",
		},
		InsertOnlyFields: []string{"enrollment_date"},
		TrackedFields:    []string{"current_score", "final_score"},
	},
	EntityAssignment: {
		Type:           EntityAssignment,
		Table:          "assignments",
		IdentityFields: []string{FieldID},
		MutableFields: []string{
			"name", "points_possible", "assignment_type", "published", "module_id", "module_position", "due_at",
		},
		InsertOnlyFields: []string{FieldCourseID},
		TrackedFields:    []string{"points_possible"},
	},
	EntityEnrollment: {
		Type:           EntityEnrollment,
		Table:          "enrollments",
		IdentityFields: []string{FieldStudentID, FieldCourseID},
		MutableFields: []string{
			"canvas_enrollment_id", "enrollment_state", "current_score", "final_score",
			"current_grade", "final_grade", "course_section_id",
		},
		TrackedFields:           []string{"current_score", "final_score", "current_grade", "final_grade"},
		SupportsLifecycleFilter: true,
		LifecycleField:          "enrollment_state",
		ActiveStates:            []string{EnrollmentStateActive},
	},
}

// Descriptor returns the descriptor for t.
func Descriptor(t EntityType) (EntityDescriptor, bool) {
	d, ok := descriptors[t]
	return d, ok
}

// MustDescriptor returns the descriptor for t and panics for unknown types.
func MustDescriptor(t EntityType) EntityDescriptor {
	d, ok := descriptors[t]
	if !ok {
		panic("models: unknown entity type " + string(t))
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
