package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrRelationship, "course 101 missing")
	require.True(t, stdErrors.Is(err, ErrRelationship))
	assert.False(t, stdErrors.Is(err, ErrValidation))
	assert.Equal(t, "course 101 missing", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := WrapAs(ErrTransactionFailure, cause, "commit sync batch")

	assert.True(t, stdErrors.Is(err, cause))
	assert.True(t, stdErrors.Is(err, ErrTransactionFailure))
	assert.Equal(t, "commit sync batch: connection reset", err.Error())
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	require.NotNil(t, err)
	assert.Equal(t, ErrInternal.Code, err.Code)

	typed := Clone(ErrNotFound, "")
	assert.Same(t, typed, FromError(fmt.Errorf("lookup: %w", typed)))
	assert.Nil(t, FromError(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, ErrMissingRequired.Code, CodeOf(fmt.Errorf("wrap: %w", Clone(ErrMissingRequired, "id"))))
	assert.Equal(t, ErrInternal.Code, CodeOf(stdErrors.New("plain")))
}
