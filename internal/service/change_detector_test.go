package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
)

func TestChangeDetectorIgnoresAbsentFields(t *testing.T) {
	d := NewChangeDetector()
	desc := models.MustDescriptor(models.EntityStudent)
	existing := models.Fields{"name": "Ada", "email": "ada@example.edu", "current_score": 91.5}

	assert.False(t, d.NeedsUpdate(desc, existing, models.Fields{"name": "Ada"}))
	assert.Empty(t, d.Diff(desc, existing, models.Fields{}))
}

func TestChangeDetectorTypedEquality(t *testing.T) {
	d := NewChangeDetector()
	desc := models.MustDescriptor(models.EntityAssignment)
	due := time.Date(2024, 2, 1, 23, 59, 0, 0, time.UTC)
	existing := models.Fields{"points_possible": 10.0, "module_id": int64(3), "due_at": due, "published": true}

	incoming := models.Fields{
		"points_possible": int64(10),
		"module_id":       3.0,
		"due_at":          due.In(time.FixedZone("EST", -5*3600)),
		"published":       true,
	}
	assert.Empty(t, d.Diff(desc, existing, incoming))
}

func TestChangeDetectorReportsChangesAndNulls(t *testing.T) {
	d := NewChangeDetector()
	desc := models.MustDescriptor(models.EntityEnrollment)
	existing := models.Fields{"current_score": 80.0, "current_grade": "B-", "final_grade": nil}

	diff := d.Diff(desc, existing, models.Fields{"current_score": 85.0, "current_grade": nil, "final_grade": "B"})
	assert.Equal(t, models.Fields{"current_score": 85.0, "current_grade": nil, "final_grade": "B"}, diff)
}

func TestChangeDetectorSkipsNonMutableFields(t *testing.T) {
	d := NewChangeDetector()
	desc := models.MustDescriptor(models.EntityCourse)
	existing := models.Fields{models.FieldID: int64(101), "created_at": time.Unix(0, 0).UTC(), "total_students": int64(4), models.FieldLastSynced: time.Unix(0, 0).UTC()}
	incoming := models.Fields{models.FieldID: int64(102), "created_at": time.Now().UTC(), "total_students": int64(0), models.FieldLastSynced: time.Now().UTC()}

	assert.False(t, d.NeedsUpdate(desc, existing, incoming))
}

func TestChangeDetectorComparesLargeIDsExactly(t *testing.T) {
	d := NewChangeDetector()
	desc := models.MustDescriptor(models.EntityEnrollment)
	existing := models.Fields{"course_section_id": int64(9007199254740992), "canvas_enrollment_id": int64(90100000000042)}
	incoming := models.Fields{"course_section_id": int64(9007199254740993), "canvas_enrollment_id": 90100000000042}

	diff := d.Diff(desc, existing, incoming)
	assert.Equal(t, models.Fields{"course_section_id": int64(9007199254740993)}, diff)
	assert.True(t, d.NeedsUpdate(desc, existing, incoming))
	assert.False(t, d.NeedsUpdate(desc, existing, models.Fields{"course_section_id": 9007199254740992.0}), "ints still match equal floats")
}
