package grerrno

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfNil(t *testing.T) {
	require.Equal(t, OK, Of(nil))
}

func TestOfErrno(t *testing.T) {
	assert.Equal(t, ENODEV, Of(ENODEV))
}

func TestOfWrapped(t *testing.T) {
	err := fmt.Errorf("lookup failed: %w", ENODEV)
	assert.Equal(t, ENODEV, Of(err))
}

func TestOfOpaque(t *testing.T) {
	assert.Equal(t, ENOMEM, Of(fmt.Errorf("boom")))
}
