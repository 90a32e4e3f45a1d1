package grinfra

import (
	"strings"
	"testing"

	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsIDAndRejectsDuplicateName(t *testing.T) {
	table := NewTable()
	a := &Iface{Name: "port0", Type: TypePort}
	require.NoError(t, table.Add(a))
	assert.NotEqual(t, UndefID, a.ID)

	b := &Iface{Name: "port0", Type: TypePort}
	err := table.Add(b)
	assert.ErrorIs(t, err, grerrno.EEXIST)
}

func TestGetUnknownIsENODEV(t *testing.T) {
	table := NewTable()
	_, err := table.Get(999)
	assert.ErrorIs(t, err, grerrno.ENODEV)
}

func TestDeleteMissingOK(t *testing.T) {
	table := NewTable()
	assert.NoError(t, table.Delete(42, true))
	assert.Error(t, table.Delete(42, false))
}

func TestListFiltersByVRF(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Add(&Iface{Name: "a", Type: TypePort, VRF: 0}))
	require.NoError(t, table.Add(&Iface{Name: "b", Type: TypePort, VRF: 1}))
	require.NoError(t, table.Add(&Iface{Name: "c", Type: TypePort, VRF: 1}))

	vrf1 := uint16(1)
	filtered := table.List(&vrf1)
	assert.Len(t, filtered, 2)

	all := table.List(nil)
	assert.Len(t, all, 3)
}

func TestValidateNameRejectsTooLong(t *testing.T) {
	name := strings.Repeat("x", NameMaxLen+1)
	err := ValidateName(name)
	assert.ErrorIs(t, err, grerrno.ENAMETOOLONG)
}

func TestValidateNameRejectsEmpty(t *testing.T) {
	assert.Error(t, ValidateName(""))
}

func TestValidateNameAcceptsValid(t *testing.T) {
	assert.NoError(t, ValidateName("bond0"))
}

func TestListIsSortedByID(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Add(&Iface{Name: "z", Type: TypePort}))
	require.NoError(t, table.Add(&Iface{Name: "a", Type: TypePort}))
	list := table.List(nil)
	require.Len(t, list, 2)
	assert.Less(t, list[0].ID, list[1].ID)
}
