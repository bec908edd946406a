package models

import "time"

// EnrollmentStateActive is the only enrollment state counted towards course totals.
const EnrollmentStateActive = "active"

// Enrollment links a student to a course. (StudentID, CourseID) is unique;
// ID is a generated row id.
type Enrollment struct {
	ID                 string    `db:"id" json:"id"`
	StudentID          int64     `db:"student_id" json:"student_id"`
	CourseID           int64     `db:"course_id" json:"course_id"`
	CanvasEnrollmentID *int64    `db:"canvas_enrollment_id" json:"canvas_enrollment_id,omitempty"`
	EnrollmentState    *string   `db:"enrollment_state" json:"enrollment_state,omitempty"`
	CurrentScore       *float64  `db:"current_score" json:"current_score,omitempty"`
	FinalScore         *float64  `db:"final_score" json:"final_score,omitempty"`
	CurrentGrade       *string   `db:"current_grade" json:"current_grade,omitempty"`
	FinalGrade         *string   `db:"final_grade" json:"final_grade,omitempty"`
	CourseSectionID    *int64    `db:"course_section_id" json:"course_section_id,omitempty"`
	LastSynced         time.Time `db:"last_synced" json:"last_synced"`
}

// Key returns the enrollment's composite identity.
func (e Enrollment) Key() string {
	return EnrollmentKey(e.StudentID, e.CourseID)
}

// Fields flattens the enrollment for change detection.
func (e Enrollment) Fields() Fields {
	return Fields{
		FieldID:                e.ID,
		FieldStudentID:         e.StudentID,
		FieldCourseID:          e.CourseID,
		"canvas_enrollment_id": derefInt(e.CanvasEnrollmentID),
		"enrollment_state":     derefString(e.EnrollmentState),
		"current_score":        derefFloat(e.CurrentScore),
		"final_score":          derefFloat(e.FinalScore),
		"current_grade":        derefString(e.CurrentGrade),
		"final_grade":          derefString(e.FinalGrade),
		"course_section_id":    derefInt(e.CourseSectionID),
		FieldLastSynced:        e.LastSynced,
	}
}
