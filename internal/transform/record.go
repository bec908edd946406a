package transform

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

type kind int

const (
	kindInt kind = iota
	kindFloat
	kindString
	kindBool
	kindTime
)

// field maps one persistence column onto candidate raw paths.
type field struct {
	column string
	// paths are tried in order; nested Canvas objects use multi-segment paths.
	paths    [][]string
	kind     kind
	required bool
	// stampNow substitutes the transform time for a missing or malformed timestamp.
	stampNow bool
	// notNull drops explicit nulls instead of emitting them.
	notNull bool
	// fromContext falls back to Context.CourseID.
	fromContext bool
	// key columns take part in identity resolution and ignore the optional allow-list.
	key bool
	// rule is an optional validator tag applied to the coerced value.
	rule string
}

func path(segments ...string) []string { return segments }

// requirement is satisfied when at least one of columns is present.
type requirement struct {
	columns []string
}

type recordTransformer struct {
	entity   models.EntityType
	fields   []field
	anyOf    []requirement
	logger   *zap.Logger
	validate *validator.Validate
}

func newRecordTransformer(entity models.EntityType, def definition, logger *zap.Logger, validate *validator.Validate) *recordTransformer {
	return &recordTransformer{
		entity:   entity,
		fields:   def.fields,
		anyOf:    def.anyOf,
		logger:   logger.With(zap.String("entity", string(entity))),
		validate: validate,
	}
}

// Entity implements Transformer.
func (t *recordTransformer) Entity() models.EntityType { return t.entity }

// Transform implements Transformer.
func (t *recordTransformer) Transform(raw map[string]interface{}, ctx Context) TransformResult {
	now := ctx.now()
	out := make(models.Fields, len(t.fields))
	result := TransformResult{Identity: rawIdentity(raw)}

	if raw == nil {
		result.Err = appErrors.Clone(appErrors.ErrMissingRequired, fmt.Sprintf("%s record is empty", t.entity))
		return result
	}

	for _, f := range t.fields {
		value, present := lookup(raw, f.paths)
		if (!present || value == nil) && f.fromContext && ctx.CourseID != nil {
			value, present = *ctx.CourseID, true
		}

		if f.required {
			coerced, ok := t.coerce(f, value, present)
			if !ok {
				result.Err = appErrors.Clone(appErrors.ErrMissingRequired, fmt.Sprintf("%s: missing or invalid required field %q", t.entity, f.column))
				return result
			}
			if f.rule != "" {
				if err := t.validate.Var(coerced, f.rule); err != nil {
					result.Err = appErrors.Wrap(err, appErrors.ErrMissingRequired.Code, appErrors.ErrMissingRequired.Status,
						fmt.Sprintf("%s: invalid required field %q", t.entity, f.column))
					return result
				}
			}
			out[f.column] = coerced
			continue
		}

		if !f.key && !ctx.allows(t.entity, f.column) {
			continue
		}
		if !present {
			if f.stampNow {
				out[f.column] = now
			}
			continue
		}
		if value == nil {
			if f.stampNow {
				out[f.column] = now
			} else if !f.notNull {
				out[f.column] = nil
			}
			continue
		}

		coerced, ok := t.coerce(f, value, true)
		if ok && f.rule != "" {
			ok = t.validate.Var(coerced, f.rule) == nil
		}
		if !ok {
			t.logger.Warn("dropping malformed field",
				zap.String("field", f.column),
				zap.Any("value", value),
				zap.String("identity", result.Identity),
			)
			if f.stampNow {
				out[f.column] = now
			}
			continue
		}
		out[f.column] = coerced
	}

	for _, req := range t.anyOf {
		if !hasAny(out, req.columns) {
			result.Err = appErrors.Clone(appErrors.ErrMissingRequired,
				fmt.Sprintf("%s: one of %s is required", t.entity, strings.Join(req.columns, ", ")))
			return result
		}
	}

	record := models.Record{Entity: t.entity, Fields: out, SyncedAt: now}
	return TransformResult{Success: true, Record: record, Identity: record.Identity()}
}

func (t *recordTransformer) coerce(f field, value interface{}, present bool) (interface{}, bool) {
	if !present || value == nil {
		return nil, false
	}
	switch f.kind {
	case kindInt:
		return toInt64(value)
	case kindFloat:
		return toFloat64(value)
	case kindString:
		return toString(value)
	case kindBool:
		return toBool(value)
	case kindTime:
		return parseTimestamp(value)
	default:
		return nil, false
	}
}

// lookup returns the first path present in raw. A present JSON null counts as present.
func lookup(raw map[string]interface{}, paths [][]string) (interface{}, bool) {
	for _, p := range paths {
		if v, ok := dig(raw, p); ok {
			return v, true
		}
	}
	return nil, false
}

func dig(raw map[string]interface{}, p []string) (interface{}, bool) {
	var current interface{} = raw
	for _, segment := range p {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func hasAny(fields models.Fields, columns []string) bool {
	for _, c := range columns {
		if v, ok := fields[c]; ok && v != nil {
			return true
		}
	}
	return false
}

func rawIdentity(raw map[string]interface{}) string {
	if raw == nil {
		return ""
	}
	if id, ok := raw["id"]; ok && id != nil {
		return fmt.Sprintf("%v", id)
	}
	return ""
}
