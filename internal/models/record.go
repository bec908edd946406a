package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Fields maps persistence column names to normalized values.
// Values are int64, float64, string, bool, time.Time or nil (explicit NULL).
// A missing key means the source did not supply the field.
type Fields map[string]interface{}

// Int64 returns the integer stored under key.
func (f Fields) Int64(key string) (int64, bool) {
	switch v := f[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// String returns the string stored under key.
func (f Fields) String(key string) (string, bool) {
	v, ok := f[key].(string)
	return v, ok
}

// Has reports whether key is present, including explicit nil.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Record is the canonical, validated form of one incoming entity.
type Record struct {
	Entity   EntityType `json:"entity"`
	Fields   Fields     `json:"fields"`
	SyncedAt time.Time  `json:"synced_at"`
	// Position is the record's index in its input list.
	Position int `json:"position"`
}

// Identity renders the record's identity for diagnostics and conflict detection.
// Enrollments without a resolved student fall back to their Canvas user id.
func (r Record) Identity() string {
	d, ok := Descriptor(r.Entity)
	if !ok {
		return fmt.Sprintf("%v", r.Fields[FieldID])
	}
	if r.Entity == EntityEnrollment && !r.Fields.Has(FieldStudentID) {
		user, _ := r.Fields.Int64(FieldUserID)
		course, _ := r.Fields.Int64(FieldCourseID)
		return EnrollmentUserKey(user, course)
	}
	parts := make([]string, 0, len(d.IdentityFields))
	for _, field := range d.IdentityFields {
		parts = append(parts, fmt.Sprintf("%v", r.Fields[field]))
	}
	return strings.Join(parts, ":")
}

// EnrollmentKey is the identity of an enrollment pair.
func EnrollmentKey(studentID, courseID int64) string {
	return fmt.Sprintf("%d:%d", studentID, courseID)
}

// EnrollmentUserKey identifies an enrollment whose student is known only by Canvas user id.
func EnrollmentUserKey(userID, courseID int64) string {
	return fmt.Sprintf("user:%d:%d", userID, courseID)
}

// IDKey is the identity of a single-id entity.
func IDKey(id int64) string {
	return fmt.Sprintf("%d", id)
}
