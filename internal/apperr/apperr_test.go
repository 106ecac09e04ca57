package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad input")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindAlreadyClaimed, KindOf(AlreadyClaimed("taken")))
	assert.Equal(t, KindStore, KindOf(Store("query", errors.New("boom"))))

	// Non-taxonomy errors fold into the store kind.
	assert.Equal(t, KindStore, KindOf(errors.New("plain")))
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := NotFound("missing link")
	outer := fmt.Errorf("register click: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(outer))
	assert.True(t, Is(outer, KindNotFound))
	assert.False(t, Is(outer, KindValidation))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Store("insert event", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert event")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), string(KindStore))
}
