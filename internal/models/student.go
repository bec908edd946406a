package models

import "time"

// Student is a Canvas learner. UserID is the Canvas user id enrollments refer to.
type Student struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Name           string     `db:"name" json:"name"`
	LoginID        *string    `db:"login_id" json:"login_id,omitempty"`
	Email          *string    `db:"email" json:"email,omitempty"`
	CurrentScore   *float64   `db:"current_score" json:"current_score,omitempty"`
	FinalScore     *float64   `db:"final_score" json:"final_score,omitempty"`
	LastActivityAt *time.Time `db:"last_activity_at" json:"last_activity_at,omitempty"`
	EnrollmentDate *time.Time `db:"enrollment_date" json:"enrollment_date,omitempty"`
	LastSynced     time.Time  `db:"last_synced" json:"last_synced"`
}

// Fields flattens the student for change detection.
func (s Student) Fields() Fields {
	return Fields{
		FieldID:            s.ID,
		FieldUserID:        s.UserID,
		"name":             s.Name,
		"login_id":         derefString(s.LoginID),
		"email":            derefString(s.Email),
		"current_score":    derefFloat(s.CurrentScore),
		"final_score":      derefFloat(s.FinalScore),
		"last_activity_at": derefTime(s.LastActivityAt),
		"enrollment_date":  derefTime(s.EnrollmentDate),
		FieldLastSynced:    s.LastSynced,
	}
}
