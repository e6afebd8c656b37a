package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(errSentinel, "load wallet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSentinel))
	assert.Contains(t, err.Error(), "load wallet")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "noop"))
	assert.NoError(t, Wrapf(nil, "noop %d", 1))
}

func TestStackLinesTruncates(t *testing.T) {
	err := Wrapf(New("boom"), "step %d", 2)
	lines := StackLines(err, 3)
	assert.Len(t, lines, 3)
	assert.Nil(t, StackLines(nil, 3))
}
