package gridem

import (
	"testing"

	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/stretchr/testify/assert"
)

func TestAddNoExisting(t *testing.T) {
	proceed, err := Add(false, false, false)
	assert.True(t, proceed)
	assert.NoError(t, err)
}

func TestAddExistingSameWithExistOK(t *testing.T) {
	proceed, err := Add(true, true, true)
	assert.False(t, proceed)
	assert.NoError(t, err)
}

func TestAddExistingSameWithoutExistOK(t *testing.T) {
	proceed, err := Add(true, true, false)
	assert.False(t, proceed)
	assert.ErrorIs(t, err, grerrno.EEXIST)
}

func TestAddExistingDifferentAlwaysConflicts(t *testing.T) {
	_, err := Add(true, false, true)
	assert.ErrorIs(t, err, grerrno.EADDRINUSE)

	_, err = Add(true, false, false)
	assert.ErrorIs(t, err, grerrno.EADDRINUSE)
}

func TestDeleteMissingWithMissingOK(t *testing.T) {
	proceed, err := Delete(false, false, true)
	assert.False(t, proceed)
	assert.NoError(t, err)
}

func TestDeleteMissingWithoutMissingOK(t *testing.T) {
	_, err := Delete(false, false, false)
	assert.ErrorIs(t, err, grerrno.ENOENT)
}

func TestDeleteExistingSameProceeds(t *testing.T) {
	proceed, err := Delete(true, true, false)
	assert.True(t, proceed)
	assert.NoError(t, err)
}

func TestDeleteExistingDifferentConflicts(t *testing.T) {
	_, err := Delete(true, false, true)
	assert.ErrorIs(t, err, grerrno.EADDRINUSE)
}
