package grmodule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	m.Run()
}

func TestInitOrderAscendingPriority(t *testing.T) {
	Reset()
	var order []string
	Register(Module{Name: "b", InitPrio: 20, Init: func() error { order = append(order, "b"); return nil }})
	Register(Module{Name: "a", InitPrio: 10, Init: func() error { order = append(order, "a"); return nil }})
	Register(Module{Name: "c", InitPrio: 30, Init: func() error { order = append(order, "c"); return nil }})

	require.NoError(t, InitAll())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFiniOrderAscendingPriority(t *testing.T) {
	Reset()
	var order []string
	Register(Module{Name: "a", FiniPrio: 10, Init: func() error { return nil }, Fini: func() { order = append(order, "a") }})
	Register(Module{Name: "b", FiniPrio: 30, Init: func() error { return nil }, Fini: func() { order = append(order, "b") }})
	Register(Module{Name: "c", FiniPrio: 20, Init: func() error { return nil }, Fini: func() { order = append(order, "c") }})

	FiniAll()
	assert.Equal(t, []string{"a", "c", "b"}, order)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	Reset()
	Register(Module{Name: "dup", Init: func() error { return nil }})
	assert.Panics(t, func() {
		Register(Module{Name: "dup", Init: func() error { return nil }})
	})
}

func TestInitAbortsOnFirstFailure(t *testing.T) {
	Reset()
	var ran []string
	Register(Module{Name: "first", InitPrio: 1, Init: func() error {
		ran = append(ran, "first")
		return errors.New("boom")
	}})
	Register(Module{Name: "second", InitPrio: 2, Init: func() error {
		ran = append(ran, "second")
		return nil
	}})

	err := InitAll()
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, ran)
}

func TestFiniSkipsNilAndSurvivesPanic(t *testing.T) {
	Reset()
	Register(Module{Name: "no-fini", Init: func() error { return nil }})
	Register(Module{Name: "panics", Init: func() error { return nil }, Fini: func() { panic("oh no") }})
	var ran bool
	Register(Module{Name: "after", FiniPrio: 1, Init: func() error { return nil }, Fini: func() { ran = true }})

	assert.NotPanics(t, FiniAll)
	assert.True(t, ran)
}

func TestNamesSorted(t *testing.T) {
	Reset()
	Register(Module{Name: "zeta", Init: func() error { return nil }})
	Register(Module{Name: "alpha", Init: func() error { return nil }})
	assert.Equal(t, []string{"alpha", "zeta"}, Names())
}
