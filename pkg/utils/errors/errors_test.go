package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/localvol-pde/pkg/utils/errors"
)

func TestWrapKeepsType(t *testing.T) {
	base := errors.NonConvergence("sor did not converge")
	wrapped := errors.Wrapf(base, "adi step %d", 3)

	require.Error(t, wrapped)
	assert.Equal(t, errors.ErrorTypeNonConvergence, errors.TypeOf(wrapped))
	assert.True(t, errors.IsType(wrapped, errors.ErrorTypeNonConvergence))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "adi step 3: sor did not converge", wrapped.Error())
}

func TestTypeOfForeignError(t *testing.T) {
	foreign := stderrors.New("plain")
	assert.Equal(t, errors.ErrorTypeUnknown, errors.TypeOf(foreign))
	assert.False(t, errors.IsType(nil, errors.ErrorTypeUnknown))
	assert.Nil(t, errors.Wrap(nil, "nothing"))
}

func TestErrorTypeString(t *testing.T) {
	for _, tc := range []struct {
		err  error
		name string
	}{
		{errors.InvalidArgument("x"), "invalid_argument"},
		{errors.SingularSystem("x"), "singular_system"},
		{errors.InversionFailure("x"), "inversion_failure"},
		{errors.Internal("x"), "internal"},
		{errors.New("x"), "unknown"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, errors.TypeOf(tc.err).String())
		})
	}
}
