package dto

import "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"

// SyncRequest carries one batch of raw Canvas records. Numbers are decoded as
// json.Number and coerced by the transformers.
type SyncRequest struct {
	CourseID    *int64                   `json:"course_id" binding:"omitempty,gt=0"`
	Courses     []map[string]interface{} `json:"courses"`
	Students    []map[string]interface{} `json:"students"`
	Assignments []map[string]interface{} `json:"assignments"`
	Enrollments []map[string]interface{} `json:"enrollments"`
}

// Batch converts the request into a sync batch.
func (r SyncRequest) Batch() models.SyncBatch {
	return models.SyncBatch{
		CourseID:    r.CourseID,
		Courses:     r.Courses,
		Students:    r.Students,
		Assignments: r.Assignments,
		Enrollments: r.Enrollments,
	}
}

// SyncQuery holds query parameters of the sync endpoint.
type SyncQuery struct {
	Mode string `form:"mode" binding:"omitempty,oneof=full incremental"`
}

// SyncMode returns the requested mode, defaulting to a full sync.
func (q SyncQuery) SyncMode() models.SyncMode {
	if q.Mode == string(models.SyncModeIncremental) {
		return models.SyncModeIncremental
	}
	return models.SyncModeFull
}

// ValidationResponse reports pre-flight integrity results.
type ValidationResponse struct {
	Valid      bool                        `json:"valid"`
	Violations []models.IntegrityViolation `json:"violations"`
}

// GradeHistoryResponse lists a student's grade snapshots newest first.
type GradeHistoryResponse struct {
	StudentID int64                 `json:"student_id"`
	Entries   []models.GradeHistory `json:"entries"`
}
