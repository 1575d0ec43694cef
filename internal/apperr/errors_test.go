package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("task not found")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("create user: %w", Conflict("username already taken"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("validate: %w", ErrInvalidToken)
	assert.True(t, errors.Is(err, ErrInvalidToken))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestMessageHidesInternalDetails(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.Equal(t, "internal server error", Message(Wrap(KindInternal, "query failed", errors.New("driver"))))
	assert.Equal(t, "body is required", Message(Validation("body is required")))
}
