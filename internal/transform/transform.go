// Package transform normalizes raw Canvas API records into models.Record values.
package transform

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

// Context carries sync-wide settings for one transform call.
type Context struct {
	// CourseID is the owning course used when a record does not name one.
	CourseID *int64
	// OptionalFields restricts emitted optional columns per entity. A nil map
	// or a missing entity entry allows every optional field.
	OptionalFields map[models.EntityType][]string
	Now            func() time.Time
}

func (c Context) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

func (c Context) allows(entity models.EntityType, column string) bool {
	if c.OptionalFields == nil {
		return true
	}
	allowed, ok := c.OptionalFields[entity]
	if !ok {
		return true
	}
	for _, f := range allowed {
		if f == column {
			return true
		}
	}
	return false
}

// TransformResult is either a normalized record or the reason it was rejected.
type TransformResult struct {
	Success bool
	Record  models.Record
	// Identity is the best available identity, also set on failures.
	Identity string
	Err      error
}

// Failure renders an unsuccessful result as a record failure.
func (r TransformResult) Failure(entity models.EntityType) models.RecordFailure {
	reason := ""
	if r.Err != nil {
		reason = r.Err.Error()
	}
	return models.RecordFailure{
		EntityType: entity,
		Identity:   r.Identity,
		Reason:     reason,
		Code:       appErrors.CodeOf(r.Err),
	}
}

// Transformer normalizes one entity type.
type Transformer interface {
	Entity() models.EntityType
	Transform(raw map[string]interface{}, ctx Context) TransformResult
}

// Registry maps entity types to their transformer.
type Registry map[models.EntityType]Transformer

// NewRegistry builds the transformer table for every synced entity type.
func NewRegistry(logger *zap.Logger, validate *validator.Validate) Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return Registry{
		models.EntityCourse:     newRecordTransformer(models.EntityCourse, courseFields, logger, validate),
		models.EntityStudent:    newRecordTransformer(models.EntityStudent, studentFields, logger, validate),
		models.EntityAssignment: newRecordTransformer(models.EntityAssignment, assignmentFields, logger, validate),
		models.EntityEnrollment: newRecordTransformer(models.EntityEnrollment, enrollmentFields, logger, validate),
	}
}

// Transform dispatches raw to the transformer registered for entity.
func (r Registry) Transform(entity models.EntityType, raw map[string]interface{}, ctx Context) TransformResult {
	t, ok := r[entity]
	if !ok {
		return TransformResult{Err: appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no transformer registered for %s", entity))}
	}
	return t.Transform(raw, ctx)
}
