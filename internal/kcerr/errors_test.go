package kcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	t.Run("bad parameter unwraps", func(t *testing.T) {
		err := BadParameter("OpTensor", "B dim %d mismatch", 2)
		assert.ErrorIs(t, err, ErrBadParameter)
		assert.Equal(t, "OpTensor: bad parameter: B dim 2 mismatch", err.Error())
	})

	t.Run("dimension survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("plan: %w", Dimension("OpTensor", 6))
		assert.ErrorIs(t, err, ErrDimension)
		assert.False(t, errors.Is(err, ErrBadParameter))

		var detailed *Error
		assert.True(t, errors.As(err, &detailed))
		assert.Equal(t, "OpTensor", detailed.Op)
	})

	t.Run("no op omits prefix", func(t *testing.T) {
		err := NoApplicableSolver("conv 3d fwd")
		assert.Equal(t, "no applicable solver: conv 3d fwd", err.Error())
	})
}
