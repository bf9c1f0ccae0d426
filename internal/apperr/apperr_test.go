package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := Persistence("insert order", errors.New("connection reset"))
	wrapped := fmt.Errorf("create order: %w", base)

	assert.Equal(t, KindPersistence, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindPersistence))
	assert.False(t, Is(wrapped, KindNotFound))
	assert.Equal(t, "insert order", Message(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal error", Message(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("bad signature")
	err := InvalidState(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "invalid_state")
}
