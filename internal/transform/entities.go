package transform

import "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"

type definition struct {
	fields []field
	anyOf  []requirement
}

const positiveID = "gt=0"

var courseFields = definition{
	fields: []field{
		{column: models.FieldID, paths: [][]string{path("id")}, kind: kindInt, required: true, rule: positiveID},
		{column: "name", paths: [][]string{path("name")}, kind: kindString, notNull: true},
		{column: "course_code", paths: [][]string{path("course_code")}, kind: kindString},
		{column: "workflow_state", paths: [][]string{path("workflow_state")}, kind: kindString},
		{column: "start_at", paths: [][]string{path("start_at")}, kind: kindTime},
		{column: "end_at", paths: [][]string{path("end_at")}, kind: kindTime},
		{column: "created_at", paths: [][]string{path("created_at")}, kind: kindTime, stampNow: true},
		{column: "calendar_ics", paths: [][]string{path("calendar_ics"), path("calendar", "ics")}, kind: kindString},
	},
}

var studentFields = definition{
	fields: []field{
		{column: models.FieldID, paths: [][]string{path("id")}, kind: kindInt, required: true, rule: positiveID},
		{column: models.FieldUserID, paths: [][]string{path("user_id"), path("user", "id")}, kind: kindInt, required: true, rule: positiveID},
		{column: "name", paths: [][]string{path("user", "name"), path("name")}, kind: kindString, notNull: true},
		{column: "login_id", paths: [][]string{path("user", "login_id"), path("login_id")}, kind: kindString},
		{column: "email", paths: [][]string{path("user", "email"), path("email")}, kind: kindString, rule: "email"},
		{column: "current_score", paths: [][]string{path("grades", "current_score"), path("current_score")}, kind: kindFloat},
		{column: "final_score", paths: [][]string{path("grades", "final_score"), path("final_score")}, kind: kindFloat},
		{column: "last_activity_at", paths: [][]string{path("last_activity_at")}, kind: kindTime},
		{column: "enrollment_date", paths: [][]string{path("enrollment_date"), path("created_at")}, kind: kindTime, stampNow: true},
	},
}

var assignmentFields = definition{
	fields: []field{
		{column: models.FieldID, paths: [][]string{path("id")}, kind: kindInt, required: true, rule: positiveID},
		{column: models.FieldCourseID, paths: [][]string{path("course_id")}, kind: kindInt, required: true, fromContext: true, rule: positiveID},
		{column: "name", paths: [][]string{path("name")}, kind: kindString, notNull: true},
		{column: "points_possible", paths: [][]string{path("points_possible")}, kind: kindFloat},
		{column: "assignment_type", paths: [][]string{path("assignment_type"), path("type")}, kind: kindString},
		{column: "published", paths: [][]string{path("published")}, kind: kindBool, notNull: true},
		{column: "module_id", paths: [][]string{path("module_id")}, kind: kindInt},
		{column: "module_position", paths: [][]string{path("module_position"), path("position")}, kind: kindInt},
		{column: "due_at", paths: [][]string{path("due_at")}, kind: kindTime},
	},
}

var enrollmentFields = definition{
	fields: []field{
		{column: models.FieldCourseID, paths: [][]string{path("course_id")}, kind: kindInt, required: true, fromContext: true, rule: positiveID},
		{column: models.FieldStudentID, paths: [][]string{path("student_id")}, kind: kindInt, key: true, notNull: true, rule: positiveID},
		{column: models.FieldUserID, paths: [][]string{path("user_id"), path("user", "id")}, kind: kindInt, key: true, notNull: true, rule: positiveID},
		{column: "canvas_enrollment_id", paths: [][]string{path("id")}, kind: kindInt},
		{column: "enrollment_state", paths: [][]string{path("enrollment_state")}, kind: kindString},
		{column: "current_score", paths: [][]string{path("grades", "current_score"), path("current_score")}, kind: kindFloat},
		{column: "final_score", paths: [][]string{path("grades", "final_score"), path("final_score")}, kind: kindFloat},
		{column: "current_grade", paths: [][]string{path("grades", "current_grade"), path("current_grade")}, kind: kindString},
		{column: "final_grade", paths: [][]string{path("grades", "final_grade"), path("final_grade")}, kind: kindString},
		{column: "course_section_id", paths: [][]string{path("course_section_id")}, kind: kindInt},
	},
	anyOf: []requirement{{columns: []string{models.FieldStudentID, models.FieldUserID}}},
}
