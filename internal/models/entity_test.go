package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorActive(t *testing.T) {
	course := MustDescriptor(EntityCourse)
	assert.True(t, course.Active(Fields{"workflow_state": CourseStateAvailable}))
	assert.True(t, course.Active(Fields{"workflow_state": nil}), "unknown state counts as active")
	assert.False(t, course.Active(Fields{"workflow_state": "deleted"}))

	enrollment := MustDescriptor(EntityEnrollment)
	assert.True(t, enrollment.Active(Fields{"enrollment_state": EnrollmentStateActive}))
	assert.False(t, enrollment.Active(Fields{"enrollment_state": "invited"}))

	assert.True(t, MustDescriptor(EntityStudent).Active(Fields{}), "students have no lifecycle")
}
