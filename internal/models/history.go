package models

import "time"

// History sources for grade rows.
const (
	HistorySourceStudent    = "student"
	HistorySourceEnrollment = "enrollment"
)

// GradeHistory is an immutable grade snapshot. Rows are only ever inserted.
type GradeHistory struct {
	ID           string    `db:"id" json:"id"`
	StudentID    int64     `db:"student_id" json:"student_id"`
	CourseID     *int64    `db:"course_id" json:"course_id,omitempty"`
	CurrentScore *float64  `db:"current_score" json:"current_score,omitempty"`
	FinalScore   *float64  `db:"final_score" json:"final_score,omitempty"`
	CurrentGrade *string   `db:"current_grade" json:"current_grade,omitempty"`
	FinalGrade   *string   `db:"final_grade" json:"final_grade,omitempty"`
	Source       string    `db:"source" json:"source"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// AssignmentScoreHistory is an immutable snapshot of an assignment's point value.
type AssignmentScoreHistory struct {
	ID             string    `db:"id" json:"id"`
	AssignmentID   int64     `db:"assignment_id" json:"assignment_id"`
	CourseID       int64     `db:"course_id" json:"course_id"`
	PointsPossible *float64  `db:"points_possible" json:"points_possible,omitempty"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
}

// HistoryEntry is the post-update state of an entity handed to the history recorder.
type HistoryEntry struct {
	Entity   EntityType
	EntityID int64
	CourseID *int64
	// Values holds the entity's full field set after the update.
	Values Fields
}
