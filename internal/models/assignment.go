package models

import "time"

// Assignment belongs to exactly one course.
type Assignment struct {
	ID             int64      `db:"id" json:"id"`
	CourseID       int64      `db:"course_id" json:"course_id"`
	Name           string     `db:"name" json:"name"`
	PointsPossible *float64   `db:"points_possible" json:"points_possible,omitempty"`
	AssignmentType *string    `db:"assignment_type" json:"assignment_type,omitempty"`
	Published      bool       `db:"published" json:"published"`
	ModuleID       *int64     `db:"module_id" json:"module_id,omitempty"`
	ModulePosition *int64     `db:"module_position" json:"module_position,omitempty"`
	DueAt          *time.Time `db:"due_at" json:"due_at,omitempty"`
	LastSynced     time.Time  `db:"last_synced" json:"last_synced"`
}

// Fields flattens the assignment for change detection.
func (a Assignment) Fields() Fields {
	return Fields{
		FieldID:           a.ID,
		FieldCourseID:     a.CourseID,
		"name":            a.Name,
		"points_possible": derefFloat(a.PointsPossible),
		"assignment_type": derefString(a.AssignmentType),
		"published":       a.Published,
		"module_id":       derefInt(a.ModuleID),
		"module_position": derefInt(a.ModulePosition),
		"due_at":          derefTime(a.DueAt),
		FieldLastSynced:   a.LastSynced,
	}
}
