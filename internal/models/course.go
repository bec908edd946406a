package models

import "time"

// Course workflow states whose derived counters are kept current. Deleted courses keep their last totals.
const (
	CourseStateAvailable   = "available"
	CourseStateUnpublished = "unpublished"
	CourseStateCompleted   = "completed"
)

// Course is a Canvas course mirrored locally. ID is assigned by Canvas.
type Course struct {
	ID               int64      `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	CourseCode       *string    `db:"course_code" json:"course_code,omitempty"`
	WorkflowState    *string    `db:"workflow_state" json:"workflow_state,omitempty"`
	StartAt          *time.Time `db:"start_at" json:"start_at,omitempty"`
	EndAt            *time.Time `db:"end_at" json:"end_at,omitempty"`
	CreatedAt        *time.Time `db:"created_at" json:"created_at,omitempty"`
	CalendarICS      *string    `db:"calendar_ics" json:"calendar_ics,omitempty"`
	TotalStudents    int        `db:"total_students" json:"total_students"`
	TotalAssignments int        `db:"total_assignments" json:"total_assignments"`
	TotalModules     int        `db:"total_modules" json:"total_modules"`
	LastSynced       time.Time  `db:"last_synced" json:"last_synced"`
}

// Fields flattens the course for change detection.
func (c Course) Fields() Fields {
	return Fields{
		FieldID:             c.ID,
		"name":              c.Name,
		"course_code":       derefString(c.CourseCode),
		"workflow_state":    derefString(c.WorkflowState),
		"start_at":          derefTime(c.StartAt),
		"end_at":            derefTime(c.EndAt),
		"created_at":        derefTime(c.CreatedAt),
		"calendar_ics":      derefString(c.CalendarICS),
		"total_students":    int64(c.TotalStudents),
		"total_assignments": int64(c.TotalAssignments),
		"total_modules":     int64(c.TotalModules),
		FieldLastSynced:     c.LastSynced,
	}
}

// CourseCounters are the derived aggregates refreshed after each sync.
type CourseCounters struct {
	CourseID         int64 `db:"course_id" json:"course_id"`
	TotalStudents    int   `db:"total_students" json:"total_students"`
	TotalAssignments int   `db:"total_assignments" json:"total_assignments"`
	TotalModules     int   `db:"total_modules" json:"total_modules"`
}

// Fields renders the counters using course column names.
func (c CourseCounters) Fields() Fields {
	return Fields{
		"total_students":    int64(c.TotalStudents),
		"total_assignments": int64(c.TotalAssignments),
		"total_modules":     int64(c.TotalModules),
	}
}

func derefString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func derefTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func derefFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
