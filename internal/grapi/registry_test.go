package grapi

import (
	"testing"

	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(Handler{Name: "iface add", RequestType: 1, Callback: func(p []byte) ([]byte, grerrno.Errno) {
		return nil, grerrno.OK
	}})

	h, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "iface add", h.Name)

	_, ok = r.Lookup(2)
	assert.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(Handler{Name: "a", RequestType: 1, Callback: func(p []byte) ([]byte, grerrno.Errno) { return nil, grerrno.OK }})
	assert.Panics(t, func() {
		r.Register(Handler{Name: "b", RequestType: 1, Callback: func(p []byte) ([]byte, grerrno.Errno) { return nil, grerrno.OK }})
	})
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(Handler{Name: "zeta", RequestType: 1, Callback: func(p []byte) ([]byte, grerrno.Errno) { return nil, grerrno.OK }})
	r.Register(Handler{Name: "alpha", RequestType: 2, Callback: func(p []byte) ([]byte, grerrno.Errno) { return nil, grerrno.OK }})
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}
