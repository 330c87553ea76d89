package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypePredicates(t *testing.T) {
	assert.True(t, IsValidation(NewValidation("bad input")))
	assert.True(t, IsNotFound(NewNotFound("missing")))
	assert.True(t, IsAlreadyLinked(NewAlreadyLinked("dup")))
	assert.True(t, IsPermissionDenied(NewPermissionDenied("nope", "write:memories")))
	assert.True(t, IsTimeout(NewTimeout("deadline", nil)))
	assert.True(t, IsInternal(NewInternal("boom", nil)))

	assert.False(t, IsNotFound(NewValidation("bad input")))
	assert.False(t, IsValidation(nil))
}

func TestWrapPreservesType(t *testing.T) {
	err := Wrap(NewNotFound("memory 7 not found"), "get memory")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "get memory")
	assert.Contains(t, err.Error(), "memory 7 not found")
}

func TestWrapForeignErrorBecomesInternal(t *testing.T) {
	base := fmt.Errorf("driver: bad connection")
	err := Wrap(base, "query failed")
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, base)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "anything"))
}

func TestRequiredScopeSurvivesWrap(t *testing.T) {
	err := Wrap(NewPermissionDenied("tool not permitted", "write:memories"), "execute")
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, "write:memories", RequiredScope(err))
	assert.Empty(t, RequiredScope(NewValidation("x")))
}
